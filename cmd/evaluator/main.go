package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/harveybc/prediction-provider-sub000/pkg/evaluator"
	"github.com/harveybc/prediction-provider-sub000/pkg/models"
)

func main() {
	masterURL := flag.String("master", "http://localhost:8090", "Marketplace node URL")
	actorID := flag.String("actor", "", "Evaluator identity (required)")
	token := flag.String("token", os.Getenv("MARKETPLACE_TOKEN"), "Bearer token (default: MARKETPLACE_TOKEN env var)")
	pollInterval := flag.Duration("poll", 5*time.Second, "Queue poll interval")
	predictorCmd := flag.String("predictor", "", "External predictor command; receives the job as JSON on stdin and prints the result JSON")
	flag.Parse()

	if *actorID == "" {
		log.Fatal("The --actor flag is required")
	}
	if *predictorCmd == "" {
		log.Fatal("The --predictor flag is required")
	}

	caps, err := evaluator.ProbeHardware()
	if err != nil {
		log.Printf("Hardware probe incomplete: %v", err)
	}
	if caps != nil {
		log.Printf("Evaluator host: %s", caps)
	}

	client := evaluator.NewClient(*masterURL, *actorID)
	if *token != "" {
		client.SetToken(*token)
	}

	predictor := evaluator.PredictorFunc(func(ctx context.Context, job *models.Job) (map[string]interface{}, *float64, error) {
		return runPredictor(ctx, *predictorCmd, job)
	})

	worker := evaluator.NewWorker(client, predictor, *pollInterval)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
		sig := <-sigChan
		log.Printf("Received signal %v, stopping", sig)
		cancel()
	}()

	worker.Run(ctx)
}

// predictorOutput is the external command's expected stdout shape
type predictorOutput struct {
	Result       map[string]interface{} `json:"result"`
	QualityScore *float64               `json:"quality_score,omitempty"`
}

// runPredictor executes the external predictor with the job on stdin
func runPredictor(ctx context.Context, command string, job *models.Job) (map[string]interface{}, *float64, error) {
	input, err := json.Marshal(job)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode job: %w", err)
	}

	parts := strings.Fields(command)
	cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
	cmd.Stdin = bytes.NewReader(input)
	cmd.Stderr = os.Stderr

	output, err := cmd.Output()
	if err != nil {
		return nil, nil, fmt.Errorf("predictor failed: %w", err)
	}

	var out predictorOutput
	if err := json.Unmarshal(output, &out); err != nil {
		return nil, nil, fmt.Errorf("predictor produced invalid JSON: %w", err)
	}
	if len(out.Result) == 0 {
		return nil, nil, fmt.Errorf("predictor produced an empty result")
	}

	return out.Result, out.QualityScore, nil
}
