// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package selector implements the match selector orchestrator of spec
// §4.9: per tile, per barcode, sharding clusters across worker threads,
// invoking the template builder, routing fragments to storage, and
// folding thread-local stats.
package selector

import (
	"fmt"
	"sort"
	"sync"

	"github.com/kestrelseq/kestrel/internal/config"
	"github.com/kestrelseq/kestrel/internal/match"
	"github.com/kestrelseq/kestrel/internal/seed"
	"github.com/kestrelseq/kestrel/internal/stats"
	"github.com/kestrelseq/kestrel/internal/storage"
	"github.com/kestrelseq/kestrel/internal/template"
	"github.com/kestrelseq/kestrel/internal/tls"
)

// Barcode describes one barcode's per-run configuration: its reference
// view, adapter set, and whether this barcode's template-length
// estimate should be refreshed per tile rather than frozen once stable.
type Barcode struct {
	Index       int
	Reference   template.ReferenceView
	Adapters    []template.Adapter
	PerTileTLS  bool
	UserTLStats *tls.Stats // non-nil overrides estimation entirely
}

// ClusterReads supplies the per-cluster, per-read base/quality data the
// builder needs; callers back it with the decoded cluster.Tile data.
type ClusterReads interface {
	// Reads returns read 1 (and, if paired, read 2) for the given
	// cluster, in forward sequencing order.
	Reads(cluster int) (rd1, rd2 template.Read, paired bool)
}

// Selector runs one tile's match selection across a fixed worker pool.
type Selector struct {
	Opt        config.Options
	Builders   map[int]*template.Builder // by barcode index
	Barcodes   map[int]Barcode
	Storage    storage.FragmentStorage
	NumWorkers int

	// Observe, if set, accumulates template-length observations across
	// tiles so a barcode's estimate can stabilize over the whole run
	// rather than restarting from nothing on every tile (spec §4.8).
	Observe *Observe

	// ClusterFilter, if its Ceiling is set, drops clusters whose total
	// match count is excessive before template building starts
	// (SPEC_FULL.md §5's supplemented MatchFilter).
	ClusterFilter match.Filter
}

// Result is the per-tile outcome of a selector Run.
type Result struct {
	Stats *stats.Counters
}

// Run partitions matches by barcode, estimates or reuses template-length
// stats per barcode, shards clusters across NumWorkers goroutines, and
// builds+stores a template for every cluster, per spec §4.9. It returns
// the first storage error any worker encountered, after all workers have
// finished (workers do not cancel each other on a peer's failure).
func (s *Selector) Run(tile int, matches []match.Match, reads ClusterReads) (Result, error) {
	numWorkers := s.NumWorkers
	if numWorkers < 1 {
		numWorkers = 1
	}

	byBarcode := partitionByBarcode(matches)

	tlStatsByBarcode := make(map[int]tls.Stats)
	for bc, bcMatches := range byBarcode {
		tlStatsByBarcode[bc] = s.barcodeTLStats(bc, bcMatches)
	}

	clustersByBarcode := make(map[int][]int)
	for bc, bcMatches := range byBarcode {
		clustersByBarcode[bc] = clusterIDs(bcMatches)
	}

	shards := make([]*stats.Counters, numWorkers)
	errs := make([]error, numWorkers)
	for i := range shards {
		shards[i] = stats.New()
	}

	var wg sync.WaitGroup
	for bc, clusters := range clustersByBarcode {
		bc := bc
		byCluster := groupByCluster(byBarcode[bc])
		builder := s.Builders[bc]
		barcodeCfg := s.Barcodes[bc]
		tlStats := tlStatsByBarcode[bc]

		for w := 0; w < numWorkers; w++ {
			w := w
			wg.Add(1)
			go func() {
				defer wg.Done()
				arena := &template.CigarArena{}
				if builder == nil {
					if errs[w] == nil {
						errs[w] = fmt.Errorf("selector: no template builder registered for barcode %d", bc)
					}
					return
				}
				// Each worker gets its own Builder value (sharing the
				// immutable Config/Opt/Ref/ROGC fields) so concurrent
				// workers never race over a shared Arena pointer.
				localBuilder := *builder
				localBuilder.Arena = arena
				for _, cl := range clusters {
					if cl%numWorkers != w {
						continue
					}
					if !s.ClusterFilter.Keep(byCluster[cl]) {
						recordFiltered(reads, cl, shards[w], bc)
						continue
					}
					if err := s.buildAndStore(tile, bc, cl, byCluster[cl], &localBuilder, barcodeCfg, tlStats, reads, arena, shards[w]); err != nil && errs[w] == nil {
						errs[w] = err
					}
				}
			}()
		}
	}
	wg.Wait()

	total := stats.New()
	for _, sh := range shards {
		total.Add(sh)
	}
	for _, err := range errs {
		if err != nil {
			return Result{Stats: total}, err
		}
	}
	return Result{Stats: total}, nil
}

func (s *Selector) buildAndStore(tile, barcode, cluster int, clusterMatches []match.Match, builder *template.Builder,
	barcodeCfg Barcode, tlStats tls.Stats, reads ClusterReads, arena *template.CigarArena, counters *stats.Counters) error {

	rd1, rd2, paired := reads.Reads(cluster)
	cand1, cand2 := candidatesForCluster(clusterMatches)

	if !paired {
		f := builderBuildSingle(builder, rd1, cand1)
		if len(barcodeCfg.Adapters) > 0 {
			template.ClipAdapter(&f, arena, rd1.Bases, barcodeCfg.Adapters)
		}
		if s.Opt.ClipSemialigned {
			builder.ApplySemialignedClip(&f, rd1)
		}
		t := storage.Template{
			Fragments: [2]template.Fragment{f},
			Paired:    false,
			Tile:      tile,
			Barcode:   barcode,
			Cluster:   cluster,
			ReadQual1: rd1.Qual,
		}
		if err := s.Storage.Add(t, arena); err != nil {
			return err
		}
		counters.RecordFragment(barcode, category(f, false), f.GapCount, f.CigarLength, !f.Unmapped)
		return nil
	}

	res := builder.BuildPair(rd1, rd2, cand1, cand2, tlStats)
	f1, f2 := res.Fragments[0], res.Fragments[1]
	if len(barcodeCfg.Adapters) > 0 {
		template.ClipAdapter(&f1, arena, rd1.Bases, barcodeCfg.Adapters)
		template.ClipAdapter(&f2, arena, rd2.Bases, barcodeCfg.Adapters)
	}
	if s.Opt.ClipSemialigned {
		builder.ApplySemialignedClip(&f1, rd1)
		builder.ApplySemialignedClip(&f2, rd2)
	}
	if s.Opt.ClipOverlapping && !f1.Unmapped && !f2.Unmapped && f1.ProperPair {
		template.ClipOverlap(&f1, &f2, arena, meanQual(rd1.Qual), meanQual(rd2.Qual))
	}

	t := storage.Template{
		Fragments: [2]template.Fragment{f1, f2},
		Paired:    true,
		Tile:      tile,
		Barcode:   barcode,
		Cluster:   cluster,
		ReadQual1: rd1.Qual,
		ReadQual2: rd2.Qual,
	}
	if err := s.Storage.Add(t, arena); err != nil {
		return err
	}
	counters.RecordFragment(barcode, category(f1, true), f1.GapCount, f1.CigarLength, !f1.Unmapped)
	counters.RecordFragment(barcode, category(f2, true), f2.GapCount, f2.CigarLength, !f2.Unmapped)
	return nil
}

// recordFiltered counts a cluster dropped by ClusterFilter as unaligned
// for each of its reads, without invoking the builder or storage.
func recordFiltered(reads ClusterReads, cluster int, counters *stats.Counters, barcode int) {
	_, _, paired := reads.Reads(cluster)
	counters.RecordFragment(barcode, stats.NoMatch, 0, 0, false)
	if paired {
		counters.RecordFragment(barcode, stats.NoMatch, 0, 0, false)
	}
}

func meanQual(q []byte) float64 {
	if len(q) == 0 {
		return 0
	}
	var sum int
	for _, b := range q {
		sum += int(b)
	}
	return float64(sum) / float64(len(q))
}

func category(f template.Fragment, paired bool) stats.Category {
	switch {
	case f.Unmapped:
		return stats.NoMatch
	case !paired:
		return stats.SingleEnded
	case f.Reverse:
		return stats.ReverseIndexed
	default:
		return stats.ForwardIndexed
	}
}

// builderBuildSingle builds the best single-ended fragment by scoring
// every candidate and keeping the best, reusing the builder's pair
// machinery degenerate to one read (spec §4.7's pairing step is skipped
// for single-ended data per §4.8).
func builderBuildSingle(b *template.Builder, rd template.Read, candidates []template.Candidate) template.Fragment {
	best := template.Fragment{Unmapped: true, State: template.Unaligned}
	bestScore := -1 << 30
	for _, c := range candidates {
		// BuildPair scores only read pairings, so the mate slot gets an
		// empty read with a placeholder candidate, which never aligns.
		mate := []template.Candidate{{Contig: c.Contig}}
		f := b.BuildPair(rd, template.Read{}, []template.Candidate{c}, mate, tls.Stats{}).Fragments[0]
		f.Paired = false
		if !f.Unmapped && f.Score > bestScore {
			best, bestScore = f, f.Score
		}
	}
	return best
}

// barcodeTLStats resolves the template-length stats to use for a
// barcode, per spec §4.9: a user override if supplied; else, if the
// barcode's cross-tile estimate (Observe) is already stable and the
// barcode does not ask for PerTileTLS, that frozen record; else an
// estimate fed from this tile's own uniquely-placed read pairs (the
// only ones short of building a full template a TLS estimate can
// trust). Without Observe, or with PerTileTLS, that estimate is fresh
// for the tile and frozen (unstable) at the end of the tile if it has
// not stabilized; with Observe, the pairs feed the cross-tile estimate,
// and zero (unstable) Stats are returned while it has not stabilized.
func (s *Selector) barcodeTLStats(barcode int, matches []match.Match) tls.Stats {
	bc := s.Barcodes[barcode]
	if bc.UserTLStats != nil {
		return *bc.UserTLStats
	}

	batchSize, tolerance := 100, 5.0
	var est *tls.Estimator
	if s.Observe != nil {
		if st, ok := s.Observe.Stats(barcode); ok {
			if bc.PerTileTLS {
				est = tls.New(batchSize, tolerance)
			} else {
				return st
			}
		}
	}
	if est == nil {
		est = tls.New(batchSize, tolerance)
	}

	useObserve := s.Observe != nil && !bc.PerTileTLS
	for _, obs := range uniquePairObservations(matches) {
		if useObserve {
			if st, ok := s.Observe.Record(barcode, obs, batchSize, tolerance); ok {
				return st
			}
			continue
		}
		if st, ok := est.Add(obs); ok {
			return st
		}
	}
	if useObserve {
		if st, ok := s.Observe.Stats(barcode); ok {
			return st
		}
		return tls.Stats{}
	}
	return est.Freeze()
}

// uniquePairObservations derives template-length observations directly
// from raw matches, without building a template: clusters where each
// read has exactly one non-sentinel candidate on a shared contig give a
// trustworthy length/orientation sample cheaply.
func uniquePairObservations(matches []match.Match) []tls.Observation {
	var out []tls.Observation
	for _, clusterMatches := range groupByCluster(matches) {
		cand1, cand2 := candidatesForCluster(clusterMatches)
		if len(cand1) != 1 || len(cand2) != 1 || cand1[0].Contig != cand2[0].Contig {
			continue
		}
		c1, c2 := cand1[0], cand2[0]
		start, end := c1.Position, c2.Position
		if end < start {
			start, end = end, start
		}
		idx := 0
		if c1.Reverse {
			idx |= 1 << 2
		}
		if c2.Reverse {
			idx |= 1 << 1
		}
		if c2.Position < c1.Position {
			idx |= 1
		}
		out = append(out, tls.Observation{Length: int(end - start), Model: tls.Model(idx % 8)})
	}
	return out
}

// Observe accumulates template-length observations across tiles so a
// barcode's estimate can stabilize over the whole run rather than
// restarting from nothing on every tile (spec §4.8).
type Observe struct {
	estimators map[int]*tls.Estimator
	mu         sync.Mutex
}

// NewObserve creates an empty cross-tile Observe tracker.
func NewObserve() *Observe {
	return &Observe{estimators: make(map[int]*tls.Estimator)}
}

// Record adds one observation for barcode, returning the frozen stats
// once stable.
func (o *Observe) Record(barcode int, obs tls.Observation, batchSize int, tolerance float64) (tls.Stats, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.estimators[barcode]
	if !ok {
		e = tls.New(batchSize, tolerance)
		o.estimators[barcode] = e
	}
	return e.Add(obs)
}

// Stats reports barcode's frozen stats, if it has stabilized.
func (o *Observe) Stats(barcode int) (tls.Stats, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.estimators[barcode]
	if !ok {
		return tls.Stats{}, false
	}
	return e.Frozen()
}

func partitionByBarcode(matches []match.Match) map[int][]match.Match {
	out := make(map[int][]match.Match)
	for _, m := range matches {
		bc := m.SeedID.Barcode()
		out[bc] = append(out[bc], m)
	}
	return out
}

func clusterIDs(matches []match.Match) []int {
	seen := make(map[int]bool)
	var out []int
	for _, m := range matches {
		c := m.SeedID.Cluster()
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	sort.Ints(out)
	return out
}

func groupByCluster(matches []match.Match) map[int][]match.Match {
	out := make(map[int][]match.Match)
	for _, m := range matches {
		c := m.SeedID.Cluster()
		out[c] = append(out[c], m)
	}
	return out
}

// candidatesForCluster splits a cluster's matches into read-1 and
// read-2 candidate placements, skipping sentinel (NoMatch/TooManyMatch)
// positions.
func candidatesForCluster(matches []match.Match) (cand1, cand2 []template.Candidate) {
	seenC1 := make(map[string]bool)
	seenC2 := make(map[string]bool)
	for _, m := range matches {
		if m.Position.IsSentinel() {
			continue
		}
		c := template.Candidate{
			Contig:   m.Position.Contig(),
			Position: m.Position.Offset(),
			Reverse:  m.SeedID.Reverse(),
			SeedID:   uint64(m.SeedID),
		}
		key := candidateKey(c)
		if isSecondRead(m.SeedID) {
			if !seenC2[key] {
				seenC2[key] = true
				cand2 = append(cand2, c)
			}
		} else {
			if !seenC1[key] {
				seenC1[key] = true
				cand1 = append(cand1, c)
			}
		}
	}
	return cand1, cand2
}

// isSecondRead reports whether a seed id belongs to the second read of
// a pair. The seed generator assigns odd seed indices to the second
// read by convention (spec §4.2); see internal/seed.
func isSecondRead(id seed.ID) bool { return id.SeedIndex()%2 == 1 }

func candidateKey(c template.Candidate) string {
	b := make([]byte, 0, 24)
	b = appendInt(b, c.Contig)
	b = append(b, ':')
	b = appendUint(b, c.Position)
	b = append(b, ':')
	if c.Reverse {
		b = append(b, 'r')
	}
	return string(b)
}

func appendInt(b []byte, v int) []byte {
	if v < 0 {
		b = append(b, '-')
		v = -v
	}
	return appendUint(b, uint64(v))
}

func appendUint(b []byte, v uint64) []byte {
	if v == 0 {
		return append(b, '0')
	}
	var tmp [20]byte
	i := len(tmp)
	for v > 0 {
		i--
		tmp[i] = byte('0' + v%10)
		v /= 10
	}
	return append(b, tmp[i:]...)
}
