package worker

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Chunk splits items into consecutive batches of at most size elements.
// Every item appears in exactly one batch, in input order.
func Chunk(items []string, size int) [][]string {
	if size <= 0 {
		size = 1
	}

	batches := make([][]string, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		batches = append(batches, items[start:end:end])
	}

	return batches
}

// ReadURLsFromFile reads a URL list, one entry per line
func ReadURLsFromFile(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open URL list: %w", err)
	}
	defer func() { _ = file.Close() }()

	urls, err := ReadURLs(file)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filePath, err)
	}
	return urls, nil
}

// ReadURLs returns the trimmed, non-blank lines of r without repeats,
// in first-seen order. A leading UTF-8 byte order mark is ignored.
func ReadURLs(r io.Reader) ([]string, error) {
	urls := make([]string, 0)
	seen := make(map[string]struct{})

	scanner := bufio.NewScanner(r)
	for first := true; scanner.Scan(); first = false {
		line := scanner.Text()
		if first {
			line = strings.TrimPrefix(line, "\ufeff")
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if _, dup := seen[line]; dup {
			continue
		}
		seen[line] = struct{}{}
		urls = append(urls, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return urls, nil
}
