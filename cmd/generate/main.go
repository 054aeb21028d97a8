package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"progen-go/progen"
)

func main() {
	var (
		tagsFlag   = flag.String("tags", "", "conditioning tags, e.g. organism=human,keyword=enzyme")
		checkpoint = flag.String("checkpoint", "", "path to a checkpoint blob (optional; random weights otherwise)")
		count      = flag.Int("n", 1, "number of sequences to generate")
		maxTokens  = flag.Int("max-tokens", 128, "maximum tokens per sequence")
		temp       = flag.Float64("temperature", 1.0, "sampling temperature")
		topK       = flag.Int("top-k", 0, "top-k filtering (0 = off)")
		topP       = flag.Float64("top-p", 1.0, "top-p filtering (1.0 = off)")
		repPenalty = flag.Float64("rep-penalty", 1.0, "repetition penalty (1.0 = off)")
		seed       = flag.Int64("seed", 0, "random seed (0 = nondeterministic)")
		embedDim   = flag.Int("embed-dim", 64, "embedding width")
		numLayers  = flag.Int("layers", 4, "number of transformer blocks")
		numHeads   = flag.Int("heads", 4, "number of attention heads")
		maxContext = flag.Int("max-context", 512, "maximum context length")
	)
	flag.Parse()

	schema := demoSchema()
	cfg, err := progen.NewConfig(schema,
		progen.WithEmbedDim(*embedDim),
		progen.WithNumLayers(*numLayers),
		progen.WithNumHeads(*numHeads),
		progen.WithMaxContext(*maxContext),
	)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var model *progen.Model
	if *checkpoint != "" {
		data, err := os.ReadFile(*checkpoint)
		if err != nil {
			log.Fatalf("reading checkpoint: %v", err)
		}
		model, err = progen.ImportParameters(cfg, data)
		if err != nil {
			log.Fatalf("loading checkpoint: %v", err)
		}
	} else {
		model, err = progen.NewModel(cfg)
		if err != nil {
			log.Fatalf("model: %v", err)
		}
		log.Println("no checkpoint supplied, generating from random weights")
	}

	tags, err := parseTags(*tagsFlag)
	if err != nil {
		log.Fatalf("tags: %v", err)
	}

	engine := progen.NewEngine(model)
	for i := 0; i < *count; i++ {
		callSeed := *seed
		if callSeed != 0 {
			// Distinct but reproducible sequences per run.
			callSeed += int64(i)
		}
		params := progen.NewSamplingParams(
			progen.WithMaxTokens(*maxTokens),
			progen.WithTemperature(float32(*temp)),
			progen.WithTopK(*topK),
			progen.WithTopP(float32(*topP)),
			progen.WithRepetitionPenalty(float32(*repPenalty)),
			progen.WithSeed(callSeed),
		)
		seq, err := engine.Generate(context.Background(), tags, params)
		if err != nil {
			log.Fatalf("generate: %v", err)
		}
		fmt.Println(seq)
	}
}

func demoSchema() *progen.Schema {
	schema, err := progen.NewSchema(
		progen.Category{Name: "organism", Values: []string{"human", "mouse", "ecoli", "yeast"}},
		progen.Category{Name: "keyword", Values: []string{"enzyme", "receptor", "transporter", "kinase"}},
	)
	if err != nil {
		log.Fatalf("schema: %v", err)
	}
	return schema
}

func parseTags(s string) (progen.TagSet, error) {
	var tags progen.TagSet
	if s == "" {
		return tags, nil
	}
	for _, part := range strings.Split(s, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("tag %q is not category=value", part)
		}
		tags = append(tags, progen.Tag{Category: kv[0], Value: kv[1]})
	}
	return tags, nil
}
