// Command ridesim synthesizes a pedaling session and runs it through the
// analysis pipeline. By default the pipeline runs in-process and the report
// prints to stdout; with -server it posts frames to a running bikefit
// service instead.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"net/http"
	"os"

	"github.com/velosense/bikefit/internal/config"
	"github.com/velosense/bikefit/internal/httputil"
	"github.com/velosense/bikefit/internal/pose"
	"github.com/velosense/bikefit/internal/session"
)

var (
	durationS = flag.Int("duration", 30, "ride duration in seconds")
	rpm       = flag.Float64("rpm", 90, "simulated cadence")
	fps       = flag.Int("fps", 30, "frames per second")
	noise     = flag.Float64("noise", 0.005, "positional jitter amplitude")
	seed      = flag.Int64("seed", 1, "random seed")
	tuning    = flag.String("tuning", "", "path to a JSON tuning config")
	serverURL = flag.String("server", "", "post frames to this bikefit server instead of running in-process")
)

// frameAt builds the rider's landmark frame at the given timestamp.
func frameAt(tsMs int64, periodMs float64, rng *rand.Rand, jitter float64) pose.Frame {
	phase := 2 * math.Pi * float64(tsMs) / periodMs
	frame := make(pose.Frame, 33)
	for i := range frame {
		frame[i] = pose.Landmark{X: 0.5, Y: 0.5, Visibility: 0.3}
	}

	j := func() float64 { return jitter * (2*rng.Float64() - 1) }
	kneeY := 0.62 + 0.10*math.Sin(phase) + j()
	right := map[int]pose.Landmark{
		pose.RightShoulder: {X: 0.42 + j(), Y: 0.30 + j(), Visibility: 0.95},
		pose.RightElbow:    {X: 0.31 + j(), Y: 0.41 + j(), Visibility: 0.95},
		pose.RightWrist:    {X: 0.23 + j(), Y: 0.50 + j(), Visibility: 0.95},
		pose.RightHip:      {X: 0.62 + j(), Y: 0.52 + j(), Visibility: 0.95},
		pose.RightKnee:     {X: 0.52 + j(), Y: kneeY, Visibility: 0.95},
		pose.RightAnkle:    {X: 0.57 + j(), Y: 0.90 + j(), Visibility: 0.95},
	}
	for idx, lm := range right {
		frame[idx] = lm
	}
	return frame
}

func main() {
	flag.Parse()

	cfg := config.EmptyTuningConfig()
	if *tuning != "" {
		var err error
		cfg, err = config.LoadTuningConfig(*tuning)
		if err != nil {
			log.Fatalf("failed to load tuning config: %v", err)
		}
	}

	rng := rand.New(rand.NewSource(*seed))
	periodMs := 60_000.0 / *rpm
	dtMs := int64(1000 / *fps)
	endMs := int64(*durationS) * 1000

	if *serverURL != "" {
		runRemote(rng, periodMs, dtMs, endMs)
		return
	}

	rec := session.NewRecorder(cfg)
	for ts := int64(0); ts < endMs; ts += dtMs {
		rec.ProcessFrame(ts, frameAt(ts, periodMs, rng, *noise), 16.0/9.0)
	}

	report, err := rec.Finish()
	if err != nil {
		log.Fatalf("analysis failed: %v", err)
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		log.Fatalf("failed to encode report: %v", err)
	}
	fmt.Println(string(out))

	for _, r := range report.Results {
		if r.Status != session.StatusGreen {
			fmt.Fprintf(os.Stderr, "%s: %s (%s)\n", r.Channel, r.Status, r.Suggestion)
		}
	}
}

// runRemote drives a live bikefit server over its HTTP API.
func runRemote(rng *rand.Rand, periodMs float64, dtMs, endMs int64) {
	client := httputil.NewStandardClient(http.DefaultClient)

	resp, err := client.Post(*serverURL+"/api/sessions", "application/json", nil)
	if err != nil {
		log.Fatalf("failed to create session: %v", err)
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		log.Fatalf("failed to decode session id: %v", err)
	}
	resp.Body.Close()
	log.Printf("session %s", created.ID)

	framesURL := fmt.Sprintf("%s/api/sessions/%s/frames", *serverURL, created.ID)
	for ts := int64(0); ts < endMs; ts += dtMs {
		payload, err := json.Marshal(map[string]interface{}{
			"timestamp_ms": ts,
			"aspect_ratio": 16.0 / 9.0,
			"landmarks":    frameAt(ts, periodMs, rng, *noise),
		})
		if err != nil {
			log.Fatalf("failed to encode frame: %v", err)
		}
		r, err := client.Post(framesURL, "application/json", bytes.NewReader(payload))
		if err != nil {
			log.Fatalf("failed to post frame at %dms: %v", ts, err)
		}
		io.Copy(io.Discard, r.Body)
		r.Body.Close()
	}

	r, err := client.Post(fmt.Sprintf("%s/api/sessions/%s/finish", *serverURL, created.ID), "application/json", nil)
	if err != nil {
		log.Fatalf("failed to finish session: %v", err)
	}
	defer r.Body.Close()
	body, _ := io.ReadAll(r.Body)
	if r.StatusCode != http.StatusOK {
		log.Fatalf("finish returned %d: %s", r.StatusCode, body)
	}
	fmt.Println(string(body))
}
