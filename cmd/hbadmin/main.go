package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"hellblock.ai/internal/block"
	"hellblock.ai/internal/compress"
	"hellblock.ai/internal/persistence/blobdb"
	persistlog "hellblock.ai/internal/persistence/log"
	"hellblock.ai/internal/pos"
	"hellblock.ai/internal/storage/adapter/kvadapter"
	"hellblock.ai/internal/storage/codec"
	"hellblock.ai/internal/storage/events"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "region":
			regionCmd(os.Args[2:])
			return
		case "kv":
			kvCmd(os.Args[2:])
			return
		case "journal":
			journalCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("hbadmin", flag.ExitOnError)
	root := fs.String("root", "./data/worlds", "host world root")
	_ = fs.Parse(args)

	entries, err := os.ReadDir(*root)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(*root, e.Name(), "level.json")); err == nil {
			fmt.Println(e.Name())
		}
	}
}

func regionCmd(args []string) {
	fs := flag.NewFlagSet("region", flag.ExitOnError)
	path := fs.String("file", "", "region file (r.X.Z.ext)")
	comp := fs.String("compression", "zstd", "section compression")
	ns := fs.String("namespace", block.DefaultNamespace, "namespace for legacy payloads")
	verbose := fs.Bool("blocks", false, "print every stored block")
	_ = fs.Parse(args)

	if strings.TrimSpace(*path) == "" {
		fmt.Fprintln(os.Stderr, "missing -file")
		os.Exit(2)
	}
	rp, err := parseRegionName(filepath.Base(*path))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	cc, err := newCodec(*comp, *ns)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	b, err := os.ReadFile(*path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	chunks, err := codec.DecodeRegion(rp, b)
	if err != nil {
		fmt.Fprintln(os.Stderr, "decode:", err)
		os.Exit(1)
	}
	fmt.Printf("region %s chunks=%d bytes=%d\n", rp, len(chunks), len(b))
	if failed := dumpChunks(os.Stdout, cc, chunks, *verbose); failed > 0 {
		os.Exit(1)
	}
}

func kvCmd(args []string) {
	fs := flag.NewFlagSet("kv", flag.ExitOnError)
	dir := fs.String("dir", "", "leveldb blob directory (world/blobs)")
	comp := fs.String("compression", "zstd", "section compression")
	ns := fs.String("namespace", block.DefaultNamespace, "namespace for legacy payloads")
	verbose := fs.Bool("blocks", false, "print every stored block")
	_ = fs.Parse(args)

	if strings.TrimSpace(*dir) == "" {
		fmt.Fprintln(os.Stderr, "missing -dir")
		os.Exit(2)
	}
	cc, err := newCodec(*comp, *ns)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	db, err := blobdb.OpenLevelDB(*dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()
	chunks, err := loadKVChunks(db)
	if err != nil {
		fmt.Fprintln(os.Stderr, "scan:", err)
		os.Exit(1)
	}
	fmt.Printf("blobs %s chunks=%d\n", *dir, len(chunks))
	if failed := dumpChunks(os.Stdout, cc, chunks, *verbose); failed > 0 {
		os.Exit(1)
	}
}

func journalCmd(args []string) {
	fs := flag.NewFlagSet("journal", flag.ExitOnError)
	path := fs.String("file", "", "journal file (.jsonl.zst)")
	kind := fs.String("kind", "", "only print events of this kind")
	_ = fs.Parse(args)

	if strings.TrimSpace(*path) == "" {
		fmt.Fprintln(os.Stderr, "missing -file")
		os.Exit(2)
	}
	evs, err := persistlog.ReadJournal(*path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	for _, e := range filterEvents(evs, events.Kind(strings.ToUpper(*kind))) {
		_ = enc.Encode(e)
	}
}

func newCodec(name, ns string) (*codec.ChunkCodec, error) {
	c, err := compress.Lookup(name)
	if err != nil {
		return nil, err
	}
	return codec.NewChunkCodec(c, ns)
}

// parseRegionName reads the region coordinates from "r.X.Z.ext".
func parseRegionName(name string) (pos.RegionPos, error) {
	parts := strings.Split(name, ".")
	if len(parts) != 4 || parts[0] != "r" {
		return pos.RegionPos{}, fmt.Errorf("region file name %q: want r.X.Z.ext", name)
	}
	x, err := strconv.ParseInt(parts[1], 10, 32)
	if err != nil {
		return pos.RegionPos{}, fmt.Errorf("region file name %q: bad x: %w", name, err)
	}
	z, err := strconv.ParseInt(parts[2], 10, 32)
	if err != nil {
		return pos.RegionPos{}, fmt.Errorf("region file name %q: bad z: %w", name, err)
	}
	return pos.RegionPos{X: int32(x), Z: int32(z)}, nil
}

type keyLister interface {
	Get(key string) ([]byte, bool, error)
	Keys(prefix string) ([]string, error)
}

func loadKVChunks(db keyLister) (map[pos.ChunkPos][]byte, error) {
	keys, err := db.Keys("chunk/")
	if err != nil {
		return nil, err
	}
	out := make(map[pos.ChunkPos][]byte, len(keys))
	for _, k := range keys {
		cp, ok := kvadapter.ParseChunkKey(k)
		if !ok {
			continue
		}
		v, ok, err := db.Get(k)
		if err != nil {
			return nil, err
		}
		if ok {
			out[cp] = v
		}
	}
	return out, nil
}

// dumpChunks prints one summary line per chunk and returns how many failed to decode.
func dumpChunks(w io.Writer, cc *codec.ChunkCodec, chunks map[pos.ChunkPos][]byte, verbose bool) int {
	keys := make([]pos.ChunkPos, 0, len(chunks))
	for cp := range chunks {
		keys = append(keys, cp)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].X != keys[j].X {
			return keys[i].X < keys[j].X
		}
		return keys[i].Z < keys[j].Z
	})

	failed := 0
	for _, cp := range keys {
		raw := chunks[cp]
		d, err := cc.Decode(raw)
		if err == nil && d.Pos() != cp {
			err = fmt.Errorf("payload is for chunk %s", d.Pos())
		}
		if err != nil {
			failed++
			fmt.Fprintf(w, "chunk %s bytes=%d CORRUPT: %v\n", cp, len(raw), err)
			continue
		}
		blocks := 0
		for _, s := range d.Sections {
			blocks += len(s.Blocks)
		}
		fmt.Fprintf(w, "chunk %s bytes=%d sections=%d blocks=%d ticks=%d ticked=%d loaded_s=%d\n",
			cp, len(raw), len(d.Sections), blocks, len(d.Ticks), len(d.Ticked), d.LoadedSeconds)
		if !verbose {
			continue
		}
		for _, s := range d.Sections {
			bps := make([]pos.BlockPos, 0, len(s.Blocks))
			for bp := range s.Blocks {
				bps = append(bps, bp)
			}
			sort.Slice(bps, func(i, j int) bool { return bps[i] < bps[j] })
			for _, bp := range bps {
				fmt.Fprintf(w, "  %s %s\n", bp.Abs(cp), s.Blocks[bp])
			}
		}
	}
	return failed
}

func filterEvents(evs []events.Event, kind events.Kind) []events.Event {
	if kind == "" {
		return evs
	}
	out := evs[:0:0]
	for _, e := range evs {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}
