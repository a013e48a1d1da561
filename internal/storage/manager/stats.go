package manager

import "hellblock.ai/internal/storage/events"

type WorldStats struct {
	Name         string `json:"name"`
	WorldID      string `json:"world_id"`
	Regions      int    `json:"regions"`
	LoadedChunks int    `json:"loaded_chunks"`
	StoredChunks int    `json:"stored_chunks"`
	DirtyChunks  int    `json:"dirty_chunks"`
}

type Stats struct {
	Backend      string                 `json:"backend"`
	Worlds       []WorldStats           `json:"worlds"`
	Saves        uint64                 `json:"saves"`
	ChunkWrites  uint64                 `json:"chunk_writes"`
	RegionWrites uint64                 `json:"region_writes"`
	SaveFailures uint64                 `json:"save_failures"`
	Events       map[events.Kind]uint64 `json:"events"`
}

func (m *Manager) Stats() Stats {
	s := Stats{
		Backend:      m.adapter.Name(),
		Saves:        m.saves.Load(),
		ChunkWrites:  m.chunkWrites.Load(),
		RegionWrites: m.regionWrites.Load(),
		SaveFailures: m.saveFailures.Load(),
		Events:       map[events.Kind]uint64{},
	}
	m.eventMu.Lock()
	for k, v := range m.eventCounts {
		s.Events[k] = v
	}
	m.eventMu.Unlock()

	for _, name := range m.WorldNames() {
		w := m.World(name)
		if w == nil {
			continue
		}
		ws := WorldStats{Name: name, WorldID: w.Extra().WorldID}
		for _, r := range w.Regions() {
			ws.Regions++
			ws.StoredChunks += r.ChunkCount()
			for _, c := range r.LoadedChunks() {
				ws.LoadedChunks++
				if c.Dirty() {
					ws.DirtyChunks++
				}
			}
		}
		s.Worlds = append(s.Worlds, ws)
	}
	return s
}
