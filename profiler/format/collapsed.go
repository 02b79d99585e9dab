package format

import (
	"bufio"
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/Periecle/spprof/profiler/internal/compressio"
)

// displayFrame renders one frame the way the collapsed format requires:
// "function_name (filename:line)" for interpreter frames, "[native]
// function_name" for native frames — native frames carry no reliable
// line number worth printing.
func displayFrame(f Frame) string {
	if f.IsNative {
		return "[native] " + f.FunctionName
	}
	if f.FileName == "" && f.Line == 0 {
		// No location information captured for this frame (e.g. a
		// synthetic or test-built stack): fall back to the bare name
		// rather than printing a meaningless "(:0)" suffix.
		return f.FunctionName
	}
	return fmt.Sprintf("%s (%s:%d)", f.FunctionName, f.FileName, f.Line)
}

// Collapsed serializes p into "stack;stack;stack N" line format,
// root-leaf order, lines sorted lexicographically, identical stacks
// summed.
func Collapsed(p Profile, opts ...Option) ([]byte, error) {
	o := applyOptions(opts)

	counts := make(map[string]int64)
	for _, s := range p.Stacks {
		rootLeaf := reversed(s.Frames)
		display := make([]string, len(rootLeaf))
		for i, f := range rootLeaf {
			display[i] = displayFrame(f)
		}
		key := strings.Join(display, ";")
		counts[key] += s.Weight
	}

	lines := make([]string, 0, len(counts))
	for stack, count := range counts {
		lines = append(lines, fmt.Sprintf("%s %d", stack, count))
	}
	sort.Strings(lines)

	var buf bytes.Buffer
	for _, l := range lines {
		buf.WriteString(l)
		buf.WriteByte('\n')
	}

	return compressio.Compress(o.compression, buf.Bytes())
}

// ParseCollapsed decodes collapsed output back into a stack -> count
// histogram, the inverse of Collapsed (`Profile → Collapsed →
// {stack:count}`).
func ParseCollapsed(data []byte, compression compressio.Kind) (map[string]int64, error) {
	raw, err := compressio.Decompress(compression, data)
	if err != nil {
		return nil, err
	}

	out := make(map[string]int64)
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		sep := strings.LastIndex(line, " ")
		if sep < 0 {
			return nil, fmt.Errorf("format: malformed collapsed line %q", line)
		}
		stack := line[:sep]
		count, err := strconv.ParseInt(line[sep+1:], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("format: malformed count in line %q: %w", line, err)
		}
		out[stack] += count
	}
	return out, scanner.Err()
}
