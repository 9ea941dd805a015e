// Package journal implements the on-disk lease database persistence
// from spec §4.1/§6: an append-only textual record of every lease
// state change, periodically compacted by an atomic rewrite-and-rename
// so that a crash mid-write never corrupts the previous good copy.
package journal

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/renameio/v2"

	"dhcpd/internal/lease"
)

const timeLayout = "2006-01-02 15:04:05"

// Record is one textual lease entry in spec §6's dhcpd.leases
// grammar: address, hardware address, client id, start and end
// times, binding state, and host name. A lease's pool and billing
// class are not recorded.
type Record struct {
	IP       [4]byte
	HWAddr   []byte
	ClientID []byte
	Starts   time.Time
	Ends     time.Time
	State    lease.State
	Host     string
}

// Journal owns the lease file: an append-only writer for normal
// operation, plus Rewrite for periodic compaction, which runs once
// the number of commits since the last rewrite reaches the threshold
// passed to Open.
type Journal struct {
	path      string
	f         *os.File
	w         *bufio.Writer
	commits   int
	threshold int
}

// Open opens (creating if absent) the lease file at path for
// appending, per spec §4.1's crash-recovery rule: the caller is
// responsible for refusing to start if path is missing while its
// parent directory exists (that distinguishes "fresh install" from
// "lease file lost").
func Open(path string, rewriteThreshold int) (*Journal, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	return &Journal{path: path, f: f, w: bufio.NewWriter(f), threshold: rewriteThreshold}, nil
}

// Exists reports whether the lease file is present, for the startup
// crash-recovery check ("missing file but existing parent dir" is
// refused by the caller, not by Open itself, since Open's O_CREATE
// would otherwise silently paper over data loss).
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ParentExists reports whether path's containing directory exists.
func ParentExists(path string) bool {
	_, err := os.Stat(filepath.Dir(path))
	return err == nil
}

// Append writes one lease record and flushes it, then triggers a
// compacting Rewrite once the commit count crosses threshold.
func (j *Journal) Append(r Record, rewrite func() ([]Record, error)) error {
	line := formatRecord(r)
	if _, err := j.w.WriteString(line); err != nil {
		return fmt.Errorf("journal: append: %w", err)
	}
	if err := j.w.Flush(); err != nil {
		return fmt.Errorf("journal: flush: %w", err)
	}
	j.commits++
	if j.threshold > 0 && j.commits >= j.threshold && rewrite != nil {
		records, err := rewrite()
		if err != nil {
			return err
		}
		return j.Rewrite(records)
	}
	return nil
}

// Rewrite replaces the lease file's contents atomically with records,
// via a temp-file-plus-rename so a reader (or a crash) never observes
// a partially written file.
func (j *Journal) Rewrite(records []Record) error {
	var buf strings.Builder
	for _, r := range records {
		buf.WriteString(formatRecord(r))
	}
	if err := renameio.WriteFile(j.path, []byte(buf.String()), 0o640); err != nil {
		return fmt.Errorf("journal: rewrite %s: %w", j.path, err)
	}

	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("journal: reopen after rewrite: %w", err)
	}
	j.f.Close()
	j.f = f
	j.w = bufio.NewWriter(f)
	j.commits = 0
	return nil
}

// Close flushes and closes the underlying file.
func (j *Journal) Close() error {
	if err := j.w.Flush(); err != nil {
		return err
	}
	return j.f.Close()
}

// Load reads every record from the lease file in order, for
// startup replay into a fresh lease.Database.
func Load(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("journal: load %s: %w", path, err)
	}
	defer f.Close()

	var records []Record
	sc := bufio.NewScanner(f)
	var cur *Record
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\n")
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "lease ") {
			if cur != nil {
				records = append(records, *cur)
			}
			cur = &Record{}
			fmt.Sscanf(strings.TrimSuffix(strings.TrimPrefix(line, "lease "), " {"), "%d.%d.%d.%d",
				&cur.IP[0], &cur.IP[1], &cur.IP[2], &cur.IP[3])
			continue
		}
		if cur == nil {
			continue
		}
		parseField(cur, strings.TrimSpace(line))
	}
	if cur != nil {
		records = append(records, *cur)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("journal: scan %s: %w", path, err)
	}
	return records, nil
}

func parseField(r *Record, line string) {
	line = strings.TrimSuffix(line, ";")
	switch {
	case strings.HasPrefix(line, "starts "):
		r.Starts = parseTimeField(line)
	case strings.HasPrefix(line, "ends "):
		r.Ends = parseTimeField(line)
	case strings.HasPrefix(line, "hardware ethernet "):
		hw := strings.TrimPrefix(line, "hardware ethernet ")
		r.HWAddr = parseHexColon(hw)
	case strings.HasPrefix(line, "uid "):
		r.ClientID = []byte(unquote(strings.TrimPrefix(line, "uid ")))
	case strings.HasPrefix(line, "binding state "):
		r.State = parseState(strings.TrimPrefix(line, "binding state "))
	case strings.HasPrefix(line, "client-hostname "):
		r.Host = unquote(strings.TrimPrefix(line, "client-hostname "))
	}
}

func parseTimeField(line string) time.Time {
	fields := strings.SplitN(line, " ", 3)
	if len(fields) < 3 {
		return time.Time{}
	}
	t, _ := time.Parse(timeLayout, fields[2])
	return t
}

func parseHexColon(s string) []byte {
	parts := strings.Split(s, ":")
	out := make([]byte, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.ParseUint(p, 16, 8)
		if err != nil {
			continue
		}
		out = append(out, byte(n))
	}
	return out
}

func unquote(s string) string {
	return strings.Trim(s, `"`)
}

func parseState(s string) lease.State {
	switch s {
	case "active":
		return lease.StateActive
	case "expired":
		return lease.StateExpired
	case "released":
		return lease.StateReleased
	case "abandoned":
		return lease.StateAbandoned
	case "reset":
		return lease.StateReset
	case "backup":
		return lease.StateBackup
	default:
		return lease.StateFree
	}
}

func formatRecord(r Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "lease %d.%d.%d.%d {\n", r.IP[0], r.IP[1], r.IP[2], r.IP[3])
	fmt.Fprintf(&b, "  starts 0 %s;\n", r.Starts.UTC().Format(timeLayout))
	fmt.Fprintf(&b, "  ends 0 %s;\n", r.Ends.UTC().Format(timeLayout))
	if len(r.HWAddr) > 0 {
		fmt.Fprintf(&b, "  hardware ethernet %s;\n", hexColon(r.HWAddr))
	}
	if len(r.ClientID) > 0 {
		fmt.Fprintf(&b, "  uid %q;\n", string(r.ClientID))
	}
	if r.Host != "" {
		fmt.Fprintf(&b, "  client-hostname %q;\n", r.Host)
	}
	fmt.Fprintf(&b, "  binding state %s;\n", r.State)
	b.WriteString("}\n")
	return b.String()
}

func hexColon(b []byte) string {
	parts := make([]string, len(b))
	for i, c := range b {
		parts[i] = fmt.Sprintf("%02x", c)
	}
	return strings.Join(parts, ":")
}
