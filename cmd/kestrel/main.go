// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// kestrel runs the seed/match-finding and match-selection pipeline
// against a reference index built by cmd/kestrel-buildindex, reading
// one gob-encoded cluster.Tile per -tile flag and writing binned
// fragment storage plus a manifest under -out.
package main

import (
	"encoding/gob"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kestrelseq/kestrel/internal/binindex"
	"github.com/kestrelseq/kestrel/internal/cluster"
	"github.com/kestrelseq/kestrel/internal/config"
	"github.com/kestrelseq/kestrel/internal/errs"
	"github.com/kestrelseq/kestrel/internal/match"
	"github.com/kestrelseq/kestrel/internal/oligo"
	"github.com/kestrelseq/kestrel/internal/pipeline"
	"github.com/kestrelseq/kestrel/internal/refidx"
	"github.com/kestrelseq/kestrel/internal/runtimectx"
	"github.com/kestrelseq/kestrel/internal/seed"
	"github.com/kestrelseq/kestrel/internal/selector"
	"github.com/kestrelseq/kestrel/internal/stats"
	"github.com/kestrelseq/kestrel/internal/storage"
	"github.com/kestrelseq/kestrel/internal/template"
)

func main() {
	var tileFiles sliceValue
	flag.Var(&tileFiles, "tile", "specify a gob-encoded cluster.Tile file (required - may be present more than once)")
	refDir := flag.String("ref", "", "specify the reference index directory built by kestrel-buildindex (required)")
	out := flag.String("out", "", "specify the output bin directory (required)")
	basesMask := flag.String("basesMask", "", `specify the use-bases-mask, e.g. "Y151,I8,Y151" (required, no '*' segments)`)
	seedLength := flag.Int("seedLength", 32, "specify the k-mer width: 16, 32 or 64 (must match the reference index)")
	maskWidth := flag.Uint("maskWidth", 6, "specify the mask-file prefix width (must match the reference index)")
	repeatThreshold := flag.Int("repeatThreshold", config.Default().RepeatThreshold, "specify the maximum genomic occurrence count before a seed is treated as too-repetitive")
	firstPassSeeds := flag.Int("firstPassSeeds", config.Default().FirstPassSeeds, "specify the number of seeds generated per read by the auto seed schedule (1 gives one seed; any other value gives two, at the read's start and end)")
	gapScoring := flag.String("gapScoring", "bwa", `specify the gapped-alignment scoring scheme: "bwa" or "eland"`)
	memoryControl := flag.String("memoryControl", "off", `specify the malloc-block reaction: "off", "warning" or "strict"`)
	memoryLimitGB := flag.Int("memoryLimit", 0, "specify the memory limit in GB, required when memoryControl=strict")
	coarseBinSize := flag.Int("coarseBinSize", 1000, "specify the coarse histogram bucket width, in bases, used to build the output bin map")
	outputBinSize := flag.Int("outputBinSize", 1<<20, "specify the maximum match count per output bin")
	includeNeighbors := flag.Bool("includeNeighbors", false, "specify whether seeds flagged as occurring elsewhere in the reference are still reported, rather than dropped as too-repetitive")
	workers := flag.Int("workers", 0, "specify the number of selector worker goroutines per tile (<=0 uses all cores)")
	buffered := flag.Bool("buffered", true, "specify whether to use the double-buffered storage variant rather than direct binning")
	verbose := flag.Bool("verbose", false, "specify verbose logging")

	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), `Usage of %[1]s:
  $ %[1]s -ref <refdir> -out <outdir> -basesMask <mask> -tile <tile.gob> [-tile <tile.gob> ...]

Options:
`, os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if *refDir == "" || *out == "" || *basesMask == "" || len(tileFiles) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	var logger io.WriteCloser
	if *verbose {
		logger = runtimectx.LogCapture()
		defer logger.Close()
	}
	log.Println(os.Args)

	opt := config.Default()
	opt.SeedLength = oligo.Width(*seedLength)
	opt.RepeatThreshold = *repeatThreshold
	opt.FirstPassSeeds = *firstPassSeeds
	switch *gapScoring {
	case "bwa", "":
		opt.GapScoring = config.BWAGapScoring
	case "eland":
		opt.GapScoring = config.ELANDGapScoring
	default:
		log.Fatalf("unknown gapScoring scheme %q", *gapScoring)
	}
	mc, err := config.ParseMemoryControl(*memoryControl)
	if err != nil {
		log.Fatal(err)
	}
	opt.MemoryControl = mc
	opt.MemoryLimitGB = *memoryLimitGB
	if err := opt.Validate(); err != nil {
		log.Print(err)
		os.Exit(errs.ExitCode(err))
	}

	installDir, err := os.Executable()
	if err != nil {
		installDir = ""
	} else {
		installDir = filepath.Dir(installDir)
	}
	ctx := runtimectx.New(opt, installDir)

	if err := run(ctx, *refDir, *out, *basesMask, tileFiles, opt, *maskWidth, *coarseBinSize, *outputBinSize, *workers, *buffered, *includeNeighbors); err != nil {
		log.Print(err)
		os.Exit(errs.ExitCode(err))
	}
}

func run(ctx *runtimectx.Context, refDir, outDir, basesMask string, tileFiles []string, opt config.Options, maskWidth uint, coarseBinSize, outputBinSize, workers int, buffered, includeNeighbors bool) error {
	log.Println("loading reference metadata")
	metaPath := filepath.Join(refDir, "reference.xml")
	mf, err := os.Open(metaPath)
	if err != nil {
		return errs.NewPath(errs.IO, "kestrel.run", metaPath, err)
	}
	meta, err := refidx.ReadMetadata(mf)
	mf.Close()
	if err != nil {
		return err
	}
	if err := refidx.LoadContigs(meta.Contigs, meta.ContigFiles); err != nil {
		return err
	}

	cycleCounts, err := deriveCycleCounts(basesMask)
	if err != nil {
		return errs.New(errs.Option, "kestrel.run", err)
	}
	schedule, err := config.BasesMask(basesMask, cycleCounts)
	if err != nil {
		return errs.New(errs.Option, "kestrel.run", err)
	}
	seedSched := make(seed.Schedule, len(schedule))
	for _, r := range schedule {
		seedSched[r.Name] = seed.AutoSchedule(r.Length, opt.SeedLength, opt.FirstPassSeeds)
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return errs.NewPath(errs.IO, "kestrel.run", outDir, err)
	}

	log.Println("loading tiles")
	tiles := make(map[int]*cluster.Tile, len(tileFiles))
	var pipelineTiles []pipeline.Tile
	for i, path := range tileFiles {
		t, err := loadTile(path)
		if err != nil {
			return err
		}
		tiles[i] = t
		pipelineTiles = append(pipelineTiles, pipeline.Tile{ID: i, TotalReadLength: t.TotalReadLength()})
	}

	open := func(permutation string, prefix uint64, width uint) (match.MaskFile, error) {
		return refidx.OpenMaskFile(refidx.MaskFilePath(refDir, permutation, prefix, width))
	}
	findOpt := match.Options{
		Width:            opt.SeedLength,
		MaskWidth:        maskWidth,
		RepeatThreshold:  opt.RepeatThreshold,
		IncludeNeighbors: includeNeighbors,
		Threads:          workers,
	}
	// refOf is a deliberate single-reference simplification: every
	// barcode resolves to the one reference loaded from -ref. Multi-
	// reference barcode resolution is out of scope.
	refOf := func(barcode int) (int, bool) { return 0, true }

	computeMatches := func(t *cluster.Tile) ([]match.Match, error) {
		seeds := seed.Generate(t, schedule, seedSched, opt.SeedLength, refOf)
		return match.Find(seeds, open, findOpt)
	}

	log.Println("pass 1: accumulating match distribution")
	contigLens := make([]uint64, len(meta.Contigs))
	for i, c := range meta.Contigs {
		contigLens[i] = uint64(c.TotalBases())
	}
	dist := match.NewDistribution(contigLens, uint64(coarseBinSize))
	for _, id := range sortedTileIDs(tiles) {
		matches, err := computeMatches(tiles[id])
		if err != nil {
			return err
		}
		for _, m := range matches {
			dist.AddPosition(m.Position)
		}
	}

	outputBins := dist.BuildOutputBins(outputBinSize)
	var binMap *binindex.Map
	err = ctx.Guard.Do("kestrel.buildBinIndex", func() error {
		var err error
		binMap, err = binindex.Build(outputBins, len(meta.Contigs))
		return err
	})
	if err != nil {
		return err
	}

	var store storage.FragmentStorage
	if buffered {
		store = storage.NewBuffering(outDir, binMap.BinOf, max1(workers))
	} else {
		store = storage.NewBinning(outDir, binMap.BinOf)
	}

	ref := &referenceView{contigs: meta.Contigs}
	builder := &template.Builder{Config: opt.GapScoring, Opt: opt}
	builder.Ref = ref
	sel := &selector.Selector{
		Opt:        opt,
		Builders:   map[int]*template.Builder{0: builder},
		Barcodes:   map[int]selector.Barcode{0: {Index: 0, Reference: ref}},
		Storage:    store,
		NumWorkers: max1(workers),
		Observe:    selector.NewObserve(),
	}

	qualTable := qualityTableFor(opt)
	total := stats.New()
	load := func(pt pipeline.Tile) (pipeline.Loaded, error) {
		t := tiles[pt.ID]
		matches, err := computeMatches(t)
		if err != nil {
			return pipeline.Loaded{}, err
		}
		return pipeline.Loaded{Matches: matches, Reads: &tileReads{tile: t, reads: schedule, qualTable: qualTable}}, nil
	}
	flush := func(pt pipeline.Tile, res selector.Result) error {
		if res.Stats != nil {
			total.Add(res.Stats)
		}
		log.Printf("tile %d flushed", pt.ID)
		return nil
	}

	log.Println("pass 2: building and storing templates")
	ctrl := pipeline.New(sel, store, load, flush)
	if err := ctrl.Run(pipelineTiles); err != nil {
		return err
	}

	bins, err := store.Close()
	if err != nil {
		return errs.New(errs.IO, "kestrel.run", err)
	}
	manifest := storage.NewManifest(metaPath, []string{"0"}, bins)
	manifestPath := filepath.Join(outDir, "manifest.xml")
	out, err := os.Create(manifestPath)
	if err != nil {
		return errs.NewPath(errs.IO, "kestrel.run", manifestPath, err)
	}
	err = storage.WriteManifest(out, manifest)
	closeErr := out.Close()
	if err != nil {
		return err
	}
	if closeErr != nil {
		return errs.New(errs.IO, "kestrel.run", closeErr)
	}
	return nil
}

func max1(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

func sortedTileIDs(tiles map[int]*cluster.Tile) []int {
	ids := make([]int, 0, len(tiles))
	for id := range tiles {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func loadTile(path string) (*cluster.Tile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.NewPath(errs.IO, "kestrel.loadTile", path, err)
	}
	defer f.Close()
	var t cluster.Tile
	if err := gob.NewDecoder(f).Decode(&t); err != nil {
		return nil, errs.NewPath(errs.Format, "kestrel.loadTile", path, err)
	}
	return &t, nil
}

// deriveCycleCounts sums the explicit per-segment cycle counts named in
// mask, one entry per comma-separated segment. Unlike
// config.BasesMask's '*' wildcard, this CLI requires every segment's
// counts to be written out explicitly, so the cycle budget can be
// derived from the mask string alone without a separate flag.
func deriveCycleCounts(mask string) ([]int, error) {
	var counts []int
	for _, seg := range strings.Split(mask, ",") {
		n := 0
		i := 0
		for i < len(seg) {
			c := seg[i]
			switch {
			case c == 'Y' || c == 'y' || c == 'I' || c == 'i' || c == 'N' || c == 'n':
				i++
				if i < len(seg) && seg[i] == '*' {
					return nil, fmt.Errorf("basesMask %q: '*' segments are not supported, give an explicit cycle count", mask)
				}
				start := i
				for i < len(seg) && seg[i] >= '0' && seg[i] <= '9' {
					i++
				}
				if i == start {
					n++
					continue
				}
				v := 0
				for _, d := range seg[start:i] {
					v = v*10 + int(d-'0')
				}
				n += v
			default:
				return nil, fmt.Errorf("basesMask %q: invalid character %q", mask, c)
			}
		}
		counts = append(counts, n)
	}
	return counts, nil
}

// referenceView adapts loaded refidx.Contigs to template.ReferenceView.
type referenceView struct {
	contigs []refidx.Contig
}

func (r *referenceView) Bases(contig int) []oligo.Base {
	if contig < 0 || contig >= len(r.contigs) {
		return nil
	}
	return r.contigs[contig].Bases
}

// tileReads adapts a decoded cluster.Tile plus its read schedule to
// selector.ClusterReads, re-binning quality scores through qualTable
// (spec §3's "optionally re-binned through a 256-entry lookup") before
// any downstream consumer sees them.
type tileReads struct {
	tile      *cluster.Tile
	reads     cluster.ReadSchedule
	qualTable *cluster.QualityTable
}

// qualityTableFor builds the quality-rebinning table an opt selects:
// opt.QScoreBinValues when opt.QScoreBin is set, identity otherwise.
func qualityTableFor(opt config.Options) *cluster.QualityTable {
	if opt.QScoreBin && opt.QScoreBinValues != nil {
		t := cluster.QualityTable(*opt.QScoreBinValues)
		return &t
	}
	return cluster.Identity()
}

func (t *tileReads) Reads(cluster int) (rd1, rd2 template.Read, paired bool) {
	rs := t.reads.Reads()
	if len(rs) == 0 {
		return template.Read{}, template.Read{}, false
	}
	rd1 = extractRead(t.tile, cluster, rs[0], t.qualTable)
	if len(rs) > 1 {
		rd2 = extractRead(t.tile, cluster, rs[1], t.qualTable)
		paired = true
	}
	return rd1, rd2, paired
}

func extractRead(t *cluster.Tile, clusterIdx int, r cluster.Read, qualTable *cluster.QualityTable) template.Read {
	calls := t.Calls[clusterIdx]
	bases := make([]oligo.Base, r.Length)
	qual := make([]byte, r.Length)
	for i := 0; i < r.Length; i++ {
		c := qualTable.Rebin(calls[r.Offset+i])
		if b, ok := c.Base(); ok {
			bases[i] = b
		}
		qual[i] = c.Quality()
	}
	return template.Read{Bases: bases, Qual: qual}
}

// sliceValue is a multi-value flag value.
type sliceValue []string

// Set adds the string to the sliceValue.
func (s *sliceValue) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// String satisfies the flag.Value interface.
func (s *sliceValue) String() string {
	return fmt.Sprintf("%q", []string(*s))
}
