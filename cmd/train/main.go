package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"progen-go/progen"
)

// Input format: one record per line, "organism=human,keyword=enzyme<TAB>MKV...".
// An empty tag field means an unconditioned record.
func main() {
	var (
		dataPath   = flag.String("data", "", "training data file (tags<TAB>sequence per line)")
		outPath    = flag.String("out", "model.ckpt", "checkpoint output path")
		epochs     = flag.Int("epochs", 1, "training epochs")
		batchSize  = flag.Int("batch", 8, "batch size")
		lr         = flag.Float64("lr", 3e-4, "peak learning rate")
		embedDim   = flag.Int("embed-dim", 64, "embedding width")
		numLayers  = flag.Int("layers", 4, "number of transformer blocks")
		numHeads   = flag.Int("heads", 4, "number of attention heads")
		maxContext = flag.Int("max-context", 512, "maximum context length")
	)
	flag.Parse()

	if *dataPath == "" {
		log.Fatal("-data is required")
	}

	schema, err := progen.NewSchema(
		progen.Category{Name: "organism", Values: []string{"human", "mouse", "ecoli", "yeast"}},
		progen.Category{Name: "keyword", Values: []string{"enzyme", "receptor", "transporter", "kinase"}},
	)
	if err != nil {
		log.Fatalf("schema: %v", err)
	}

	cfg, err := progen.NewConfig(schema,
		progen.WithEmbedDim(*embedDim),
		progen.WithNumLayers(*numLayers),
		progen.WithNumHeads(*numHeads),
		progen.WithMaxContext(*maxContext),
	)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	model, err := progen.NewModel(cfg)
	if err != nil {
		log.Fatalf("model: %v", err)
	}

	examples, err := loadExamples(*dataPath, model)
	if err != nil {
		log.Fatalf("loading data: %v", err)
	}
	log.Printf("loaded %d examples from %s", len(examples), *dataPath)

	trainCfg := progen.DefaultTrainingConfig()
	trainCfg.Epochs = *epochs
	trainCfg.BatchSize = *batchSize
	trainCfg.LearningRate = float32(*lr)

	if err := model.Train(examples, trainCfg); err != nil {
		log.Fatalf("training: %v", err)
	}

	blob, err := model.ExportParameters()
	if err != nil {
		log.Fatalf("exporting parameters: %v", err)
	}
	if err := os.WriteFile(*outPath, blob, 0o644); err != nil {
		log.Fatalf("writing checkpoint: %v", err)
	}
	log.Printf("wrote checkpoint to %s (%d bytes)", *outPath, len(blob))
}

func loadExamples(path string, model *progen.Model) ([]progen.Example, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	tok := progen.NewTokenizer(model.Vocab())
	maxResidues := model.Config().MaxContext - model.Config().PrefixLen() - 2

	var examples []progen.Example
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.SplitN(line, "\t", 2)
		if len(fields) != 2 {
			return nil, fmt.Errorf("line %d: expected tags<TAB>sequence", lineNo)
		}

		var tags progen.TagSet
		if fields[0] != "" {
			for _, part := range strings.Split(fields[0], ",") {
				kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
				if len(kv) != 2 {
					return nil, fmt.Errorf("line %d: tag %q is not category=value", lineNo, part)
				}
				tags = append(tags, progen.Tag{Category: kv[0], Value: kv[1]})
			}
		}

		residues := fields[1]
		if len(residues) > maxResidues {
			residues = residues[:maxResidues]
		}

		ex, err := tok.MakeExample(tags, residues)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		examples = append(examples, ex)
	}
	return examples, scanner.Err()
}
