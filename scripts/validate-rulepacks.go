//go:build ignore

// This script lints the classification rule packs that ship with the
// engine. It runs the same validation the engine applies at load time,
// plus cross-pack checks that only matter to pack authors: duplicate rule
// ids across packs, packs that mix frameworks, and rules whose confidence
// can never leave the VERY_LOW bucket.
//
// Usage:
//
//	go run scripts/validate-rulepacks.go              # Lint the embedded packs
//	go run scripts/validate-rulepacks.go PACK...      # Lint specific pack files
//	go run scripts/validate-rulepacks.go --check      # Treat warnings as errors (CI)
package main

import (
	"flag"
	"log"
	"os"
	"path/filepath"

	"github.com/tareqmamari/execintel/internal/rules"
)

func main() {
	log.SetFlags(0)

	checkMode := flag.Bool("check", false, "Treat warnings as errors")
	flag.Parse()

	paths := flag.Args()
	if len(paths) == 0 {
		var err error
		paths, err = filepath.Glob(filepath.Join("internal", "rules", "packs", "*.yaml"))
		if err != nil {
			log.Fatalf("Failed to list embedded packs: %v", err)
		}
		if len(paths) == 0 {
			log.Fatalf("No rule packs found under internal/rules/packs (run from the repository root)")
		}
	}

	var packs, ruleCount, warnings int
	owner := make(map[string]string) // rule id -> pack path that defined it

	for _, path := range paths {
		pack, err := rules.LoadPackFile(path)
		if err != nil {
			log.Fatalf("FAIL %s: %v", path, err)
		}
		packs++
		ruleCount += len(pack.Rules)

		packFramework := ""
		for _, r := range pack.Rules {
			if prev, dup := owner[r.ID]; dup {
				log.Fatalf("FAIL %s: rule %q already defined in %s", path, r.ID, prev)
			}
			owner[r.ID] = path

			if r.Framework != "" {
				if packFramework == "" {
					packFramework = r.Framework
				} else if r.Framework != packFramework {
					log.Printf("WARN %s: rule %q targets %q in a pack of %q rules", path, r.ID, r.Framework, packFramework)
					warnings++
				}
			}
			if r.Confidence < 0.5 {
				log.Printf("WARN %s: rule %q confidence %.2f always reports as VERY_LOW", path, r.ID, r.Confidence)
				warnings++
			}
			if r.Description == "" {
				log.Printf("WARN %s: rule %q has no description", path, r.ID)
				warnings++
			}
		}

		log.Printf("OK   %s: pack %q, %d rules", path, pack.Name, len(pack.Rules))
	}

	log.Printf("\n%d packs, %d rules, %d warnings", packs, ruleCount, warnings)
	if *checkMode && warnings > 0 {
		os.Exit(1)
	}
}
