// Package quota implements the periodic pull/compare/push cycle described
// in §4.G: enumerate tracked identities, pull usage from reachable storage
// targets, persist it, compute the exceeded set per pool, and push it back
// out. Grounded on the teacher's master/idgenerator periodic-alloc-and-persist
// shape (here driving BeeMsg pulls instead of raft proposals).
package quota

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/thinkparq/mgmtd/errors"
)

// IdentitySet is the enumerated set of tracked user or group IDs, built
// from the union described in step 1 of §4.G.
type IdentitySet struct {
	ids map[uint32]struct{}
}

func NewIdentitySet() *IdentitySet {
	return &IdentitySet{ids: make(map[uint32]struct{})}
}

func (s *IdentitySet) Add(id uint32) { s.ids[id] = struct{}{} }

func (s *IdentitySet) IDs() []uint32 {
	out := make([]uint32, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	return out
}

// AddRange parses an inclusive "A-B" range and adds every id in it.
func (s *IdentitySet) AddRange(spec string) error {
	lo, hi, err := parseRange(spec)
	if err != nil {
		return err
	}
	for id := lo; id <= hi; id++ {
		s.Add(id)
		if id == hi {
			break // guard against uint32 wraparound when hi == MaxUint32
		}
	}
	return nil
}

func parseRange(spec string) (uint32, uint32, error) {
	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return 0, 0, errors.New(errors.KindConfig, "quota.parseRange", "range must be of the form A-B")
	}
	lo, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 32)
	if err != nil {
		return 0, 0, errors.Wrap(errors.KindConfig, "quota.parseRange", err)
	}
	hi, err := strconv.ParseUint(strings.TrimSpace(parts[1]), 10, 32)
	if err != nil {
		return 0, 0, errors.Wrap(errors.KindConfig, "quota.parseRange", err)
	}
	if lo > hi {
		return 0, 0, errors.New(errors.KindConfig, "quota.parseRange", "range lower bound exceeds upper bound")
	}
	return uint32(lo), uint32(hi), nil
}

// AddIDFile reads whitespace-separated ids, one or many per line, from path.
func (s *IdentitySet) AddIDFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(errors.KindIO, "quota.AddIDFile", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		for _, tok := range strings.Fields(scanner.Text()) {
			id, err := strconv.ParseUint(tok, 10, 32)
			if err != nil {
				return errors.Wrap(errors.KindConfig, "quota.AddIDFile", err)
			}
			s.Add(uint32(id))
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(errors.KindIO, "quota.AddIDFile", err)
	}
	return nil
}
