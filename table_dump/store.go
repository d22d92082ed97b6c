package table_dump

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"

	"pagetables/pagetable"
)

const metadataFile = "metadata.json"

var log = logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "table-dump"))

type profileMetadata struct {
	Name            string                    `json:"name"`
	PageSize        uint64                    `json:"page_size"`
	WordSize        int                       `json:"word_size"`
	EntriesPerTable [pagetable.LevelCount]int `json:"entries_per_table"`
	PresentBit      uint64                    `json:"present_bit"`
	HugePageBit     uint64                    `json:"huge_page_bit"`
	BigEndian       bool                      `json:"big_endian"`
}

type tableMetadata struct {
	Level string `json:"level"`
	Path  []int  `json:"path"`
	File  string `json:"file"`
}

type metadata struct {
	Profile    profileMetadata `json:"profile"`
	WalkID     string          `json:"walk_id,omitempty"`
	CapturedAt time.Time       `json:"captured_at"`
	Tables     []tableMetadata `json:"tables"`
}

// tableFileName is "<level>[_<index>...].bin", e.g. "pmd_3_17.bin"
func tableFileName(level pagetable.Level, path pagetable.IndexPath) string {
	var sb strings.Builder
	sb.WriteString(level.Name())
	for _, i := range path.Indices() {
		sb.WriteString("_")
		sb.WriteString(strconv.Itoa(i))
	}
	sb.WriteString(".bin")
	return sb.String()
}

// Save writes the dump to dirname: metadata.json plus one file per table.
func (d *Dump) Save(dirname string) error {
	if err := os.MkdirAll(dirname, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	d.mu.Lock()
	keys := make([]tableKey, 0, len(d.tables))
	for k := range d.tables {
		keys = append(keys, k)
	}
	tables := make(map[tableKey][]byte, len(d.tables))
	for k, v := range d.tables {
		tables[k] = v
	}
	d.mu.Unlock()

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].level != keys[j].level {
			return keys[i].level < keys[j].level
		}
		return keys[i].path.String() < keys[j].path.String()
	})

	md := metadata{
		Profile: profileMetadata{
			Name:            d.Profile.Name,
			PageSize:        d.Profile.PageSize,
			WordSize:        d.Profile.WordSize,
			EntriesPerTable: d.Profile.EntriesPerTable,
			PresentBit:      d.Profile.PresentBit,
			HugePageBit:     d.Profile.HugePageBit,
			BigEndian:       isBigEndian(d.Profile.ByteOrder),
		},
		WalkID:     d.WalkID,
		CapturedAt: time.Now().UTC(),
	}

	for _, k := range keys {
		name := tableFileName(k.level, k.path)
		if err := os.WriteFile(filepath.Join(dirname, name), tables[k], 0644); err != nil {
			return fmt.Errorf("failed to write table file %s: %w", name, err)
		}
		md.Tables = append(md.Tables, tableMetadata{
			Level: k.level.Name(),
			Path:  k.path.Indices(),
			File:  name,
		})
	}

	metadataJSON, err := json.MarshalIndent(md, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dirname, metadataFile), metadataJSON, 0644); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}

	log.Infoln("Saved", len(keys), "tables to", dirname)
	return nil
}

// Load reads a dump written by Save
func Load(dirname string) (*Dump, error) {
	metadataBytes, err := os.ReadFile(filepath.Join(dirname, metadataFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	var md metadata
	if err := json.Unmarshal(metadataBytes, &md); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	profile := pagetable.Profile{
		Name:            md.Profile.Name,
		PageSize:        md.Profile.PageSize,
		WordSize:        md.Profile.WordSize,
		EntriesPerTable: md.Profile.EntriesPerTable,
		PresentBit:      md.Profile.PresentBit,
		HugePageBit:     md.Profile.HugePageBit,
		ByteOrder:       binary.LittleEndian,
	}
	if md.Profile.BigEndian {
		profile.ByteOrder = binary.BigEndian
	}

	d, err := New(profile)
	if err != nil {
		return nil, fmt.Errorf("dump %s: %w", dirname, err)
	}
	d.WalkID = md.WalkID

	for _, t := range md.Tables {
		level, err := pagetable.LevelByName(t.Level)
		if err != nil {
			return nil, fmt.Errorf("table %s: %w", t.File, err)
		}
		if len(t.Path) != int(level) {
			return nil, fmt.Errorf("table %s: path %v does not address %s", t.File, t.Path, level)
		}
		for _, i := range t.Path {
			if i < 0 {
				return nil, fmt.Errorf("table %s: %w: negative index in path %v", t.File, pagetable.ErrNotAddressable, t.Path)
			}
		}

		// file names come from metadata; never leave dirname
		data, err := os.ReadFile(filepath.Join(dirname, filepath.Base(t.File)))
		if err != nil {
			return nil, fmt.Errorf("failed to read table file: %w", err)
		}
		if err := d.putBytes(level, pagetable.PathOf(t.Path...), data); err != nil {
			return nil, fmt.Errorf("table %s: %w", t.File, err)
		}
	}

	log.Infoln("Loaded", len(md.Tables), "tables from", dirname)
	return d, nil
}

func isBigEndian(order binary.ByteOrder) bool {
	b := make([]byte, 2)
	order.PutUint16(b, 1)
	return b[1] == 1
}
