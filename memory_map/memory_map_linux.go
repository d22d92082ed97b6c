//go:build linux

package memory_map

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ReadSelf reads the mappings of the calling process. Its page tables are the
// ones the pagetables provider exposes.
func ReadSelf() (MemoryMap, error) {
	return readFile("/proc/self/maps")
}

// ReadMemoryMap reads the mappings of pid from /proc/[pid]/maps
func ReadMemoryMap(pid int) (MemoryMap, error) {
	return readFile(fmt.Sprintf("/proc/%d/maps", pid))
}

func readFile(name string) (MemoryMap, error) {
	file, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	items, err := Parse(file)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", name, err)
	}
	return NewMemoryMap(items), nil
}

// Parse reads maps lines such as
//
//	00400000-0040b000 r-xp 00000000 08:02 1234   /usr/bin/cat
//
// Malformed lines are skipped.
func Parse(r io.Reader) ([]MemoryMapItem, error) {
	var items []MemoryMapItem
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}

		start, end, ok := strings.Cut(fields[0], "-")
		if !ok {
			continue
		}
		startAddr, err := strconv.ParseUint(start, 16, 64)
		if err != nil {
			continue
		}
		endAddr, err := strconv.ParseUint(end, 16, 64)
		if err != nil || endAddr < startAddr {
			continue
		}

		item := MemoryMapItem{
			Address: startAddr,
			Size:    endAddr - startAddr,
			Perms:   fields[1],
		}
		// pathnames may contain spaces
		if len(fields) >= 6 {
			item.Path = strings.Join(fields[5:], " ")
		}
		items = append(items, item)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
