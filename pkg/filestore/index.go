package filestore

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"

	"github.com/Range-Software/range-cloud/pkg/types"
)

// index is the in-memory mapping from file id to metadata, mirrored to the
// store's index file. Access is confined to the file service worker.
type index struct {
	entries map[uuid.UUID]types.FileInfo
}

func newIndex() *index {
	return &index{entries: make(map[uuid.UUID]types.FileInfo)}
}

// readFromFile loads the index. A missing file yields an empty index.
func (x *index) readFromFile(fileName string) error {
	f, err := os.Open(fileName)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open index file %q: %w", fileName, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		info, err := types.FileInfoFromIndexLine(line)
		if err != nil {
			return fmt.Errorf("failed to parse index file %q: %w", fileName, err)
		}
		x.entries[info.ID] = info
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read index file %q: %w", fileName, err)
	}
	return nil
}

// writeToFile rewrites the index, one record per line in id order.
func (x *index) writeToFile(fileName string) error {
	ids := make([]uuid.UUID, 0, len(x.entries))
	for id := range x.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	var b strings.Builder
	for _, id := range ids {
		line, err := x.entries[id].IndexLine()
		if err != nil {
			return err
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	if err := renameio.WriteFile(fileName, []byte(b.String()), 0o600); err != nil {
		return fmt.Errorf("failed to write index file %q: %w", fileName, err)
	}
	return nil
}

func (x *index) register(info types.FileInfo) {
	x.entries[info.ID] = info
}

func (x *index) unregister(id uuid.UUID) types.FileInfo {
	info := x.entries[id]
	delete(x.entries, id)
	return info
}

func (x *index) exists(id uuid.UUID) bool {
	_, ok := x.entries[id]
	return ok
}

func (x *index) info(id uuid.UUID) types.FileInfo {
	return x.entries[id]
}

// list returns the entries passing the filter, ordered by id.
func (x *index) list(filter func(types.FileInfo) bool) []types.FileInfo {
	out := make([]types.FileInfo, 0, len(x.entries))
	for _, info := range x.entries {
		if filter == nil || filter(info) {
			out = append(out, info)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out
}

func (x *index) size() int {
	return len(x.entries)
}

// storeSize sums the sizes of all entries.
func (x *index) storeSize() int64 {
	var total int64
	for _, info := range x.entries {
		total += info.Size
	}
	return total
}
