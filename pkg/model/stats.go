package model

import "fmt"

// CollectionStats of the document storage for one collection.
type CollectionStats struct {
	Count             uint64 `json:"count"`
	LastEtag          uint64 `json:"last_etag"`
	LastTombstoneEtag uint64 `json:"last_tombstone_etag"`
}

func (s CollectionStats) String() string {
	return fmt.Sprintf("<CollectionStats count=%d etag=%d tombstone=%d>",
		s.Count, s.LastEtag, s.LastTombstoneEtag)
}

// IndexStats
//
// A document may produce several map entries and several
// map entries are reduced into one result, so MapEntries is
// usually higher than Results.
type IndexStats struct {
	// MapEntries number of map outputs stored for the index
	MapEntries uint64 `json:"map_entries"`
	// Results number of reduce results
	Results uint64 `json:"results"`
	// Used number of bytes used by the index
	Used uint64 `json:"used"`
	// Allocated number of bytes allocated by the index
	Allocated uint64 `json:"allocated"`
}

func (s IndexStats) String() string {
	return fmt.Sprintf("<Stats entries=%d results=%d used=%d allocated=%d>",
		s.MapEntries, s.Results, s.Used, s.Allocated)
}

// DatabaseStats of the document and index files of one database.
type DatabaseStats struct {
	Collections   uint64 `json:"collections"`
	Documents     uint64 `json:"documents"`
	Tombstones    uint64 `json:"tombstones"`
	LastEtag      uint64 `json:"last_etag"`
	FileSize      uint64 `json:"file_size"`
	IndexFileSize uint64 `json:"index_file_size"`
}
