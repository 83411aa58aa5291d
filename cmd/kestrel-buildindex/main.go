// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// kestrel-buildindex builds a reference index directory: one mask file
// per permutation/prefix bucket plus a reference-metadata document,
// consumed by cmd/kestrel's match finder.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kestrelseq/kestrel/internal/errs"
	"github.com/kestrelseq/kestrel/internal/match"
	"github.com/kestrelseq/kestrel/internal/oligo"
	"github.com/kestrelseq/kestrel/internal/refidx"
)

func main() {
	var fastas sliceValue
	flag.Var(&fastas, "fasta", "specify a single-contig FASTA file, in karyotype order (may be present more than once; mutually exclusive with -multiFasta)")
	var names sliceValue
	flag.Var(&names, "name", "specify the contig name for the -fasta given at the same position (defaults to the FASTA basename)")
	multiFasta := flag.String("multiFasta", "", "specify one multi-contig FASTA file to index via biogo/hts/fai instead of pre-splitting into per-contig -fasta files")
	out := flag.String("out", "", "specify the output reference directory (required)")
	seedLength := flag.Int("seedLength", 32, "specify the k-mer width: 16, 32 or 64")
	maskWidth := flag.Uint("maskWidth", 6, "specify the number of top bits used to bucket each permutation's k-mers into mask files")
	verbose := flag.Bool("verbose", false, "specify verbose logging")

	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), `Usage of %[1]s:
  $ %[1]s -out <refdir> -fasta <chr1.fa> [-fasta <chr2.fa> ...] [-seedLength 32] [-maskWidth 6]

Options:
`, os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if *out == "" || (len(fastas) == 0 && *multiFasta == "") {
		flag.Usage()
		os.Exit(2)
	}
	if len(fastas) != 0 && *multiFasta != "" {
		log.Fatal("-fasta and -multiFasta are mutually exclusive")
	}
	width := oligo.Width(*seedLength)
	if !width.Valid() {
		log.Fatalf("seedLength must be 16, 32 or 64, got %d", *seedLength)
	}

	if *verbose {
		log.SetOutput(os.Stderr)
	}
	log.Println(os.Args)

	if err := run(*out, fastas, names, *multiFasta, width, *maskWidth); err != nil {
		log.Print(err)
		os.Exit(errs.ExitCode(err))
	}
}

func run(outDir string, fastaFiles, names []string, multiFasta string, width oligo.Width, maskWidth uint) error {
	if len(names) != 0 && len(names) != len(fastaFiles) {
		return errs.New(errs.Option, "kestrel-buildindex.run", fmt.Errorf("-name given %d times but -fasta given %d times", len(names), len(fastaFiles)))
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return errs.NewPath(errs.IO, "kestrel-buildindex.run", outDir, err)
	}

	var contigs []refidx.Contig
	if multiFasta != "" {
		log.Println("loading contigs (fai-indexed multi-contig FASTA)")
		var err error
		contigs, err = refidx.LoadContigsFromFai(multiFasta)
		if err != nil {
			return err
		}
		// The metadata's ContigFiles must stay index-aligned with
		// contigs for the selector's runtime reload path, which scans
		// a FASTA for a named record; every contig here points back at
		// the same combined file.
		fastaFiles = make([]string, len(contigs))
		for i := range fastaFiles {
			fastaFiles[i] = multiFasta
		}
	} else {
		contigs = make([]refidx.Contig, len(fastaFiles))
		for i := range fastaFiles {
			name := ""
			if i < len(names) {
				name = names[i]
			} else {
				name = strings.TrimSuffix(filepath.Base(fastaFiles[i]), filepath.Ext(fastaFiles[i]))
			}
			contigs[i] = refidx.Contig{Index: i, KaryotypeIndex: i, Name: name}
		}

		log.Println("loading contigs")
		if err := refidx.LoadContigs(contigs, fastaFiles); err != nil {
			return err
		}
	}
	if !refidx.ValidKaryotype(contigs) {
		return errs.New(errs.Internal, "kestrel-buildindex.run", fmt.Errorf("karyotype indices are not a permutation of [0,N)"))
	}
	for i := range contigs {
		contigs[i].FileSize = contigs[i].TotalBases()
	}

	log.Println("counting k-mer occurrences")
	counts := make(map[oligo.Kmer]int)
	var sites []site
	var totalBases int
	for ci := range contigs {
		bases := contigs[ci].Bases
		totalBases += len(bases)
		var k oligo.Kmer
		for i, b := range bases {
			k = oligo.Push(k, b, width)
			if i < int(width)-1 {
				continue
			}
			pos := uint64(i) - uint64(width) + 1
			counts[k]++
			sites = append(sites, site{contig: ci, pos: pos, kmer: k})
		}
	}

	neighbors := refidx.NewBitset(totalBases)
	offset := make([]int, len(contigs))
	running := 0
	for i := range contigs {
		offset[i] = running
		running += len(contigs[i].Bases)
	}
	for _, s := range sites {
		if counts[s.kmer] > 1 {
			neighbors.Set(offset[s.contig] + int(s.pos))
		}
	}
	if f, err := os.Create(filepath.Join(outDir, "neighbors.bits")); err != nil {
		return errs.NewPath(errs.IO, "kestrel-buildindex.run", filepath.Join(outDir, "neighbors.bits"), err)
	} else {
		err := refidx.SaveBitset(f, neighbors)
		closeErr := f.Close()
		if err != nil {
			return err
		}
		if closeErr != nil {
			return errs.New(errs.IO, "kestrel-buildindex.run", closeErr)
		}
	}

	var maskEntries []refidx.MaskFileEntry
	for _, perm := range oligo.Permutations {
		log.Printf("building permutation %s", perm.Name)
		entries, err := buildPermutation(outDir, perm, sites, offset, neighbors, width, maskWidth)
		if err != nil {
			return err
		}
		maskEntries = append(maskEntries, entries...)
	}

	meta := &refidx.Metadata{
		Version:     refidx.CurrentReferenceFormatVersion,
		Contigs:     contigs,
		ContigFiles: fastaFiles,
		MaskFiles:   maskEntries,
	}
	metaPath := filepath.Join(outDir, "reference.xml")
	f, err := os.Create(metaPath)
	if err != nil {
		return errs.NewPath(errs.IO, "kestrel-buildindex.run", metaPath, err)
	}
	err = refidx.WriteMetadata(f, meta)
	closeErr := f.Close()
	if err != nil {
		return err
	}
	if closeErr != nil {
		return errs.New(errs.IO, "kestrel-buildindex.run", closeErr)
	}
	return nil
}

// site is one valid k-mer window: its forward (unpermuted) k-mer and the
// contig/offset it starts at.
type site struct {
	contig int
	pos    uint64
	kmer   oligo.Kmer
}

type record struct {
	kmer oligo.Kmer
	pos  match.Position
}

func buildPermutation(outDir string, perm oligo.Permutation, sites []site, offset []int, neighbors *refidx.Bitset, width oligo.Width, maskWidth uint) ([]refidx.MaskFileEntry, error) {
	buckets := make(map[uint64][]record)
	for _, s := range sites {
		permuted := perm.Apply(s.kmer, width)
		hasNeighbor := neighbors.Test(offset[s.contig] + int(s.pos))
		prefix := oligo.TopBits(permuted, width, maskWidth)
		buckets[prefix] = append(buckets[prefix], record{
			kmer: permuted,
			pos:  match.NewPosition(s.contig, s.pos, hasNeighbor),
		})
	}

	prefixes := make([]uint64, 0, len(buckets))
	for p := range buckets {
		prefixes = append(prefixes, p)
	}
	sort.Slice(prefixes, func(i, j int) bool { return prefixes[i] < prefixes[j] })

	var entries []refidx.MaskFileEntry
	for _, prefix := range prefixes {
		recs := buckets[prefix]
		sort.Slice(recs, func(i, j int) bool {
			if recs[i].kmer != recs[j].kmer {
				return recs[i].kmer.Less(recs[j].kmer)
			}
			return recs[i].pos < recs[j].pos
		})

		path := refidx.MaskFilePath(outDir, perm.Name, prefix, maskWidth)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errs.NewPath(errs.IO, "kestrel-buildindex.buildPermutation", filepath.Dir(path), err)
		}
		w, err := refidx.CreateMaskFile(path)
		if err != nil {
			return nil, err
		}
		for _, r := range recs {
			if err := w.Put(r.kmer, r.pos); err != nil {
				w.Close()
				return nil, err
			}
		}
		if err := w.Close(); err != nil {
			return nil, err
		}

		entries = append(entries, refidx.MaskFileEntry{
			Path:       path,
			SeedLength: int(width),
			MaskWidth:  maskWidth,
			MaskValue:  prefix,
			TotalKmers: int64(len(recs)),
		})
	}
	return entries, nil
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
