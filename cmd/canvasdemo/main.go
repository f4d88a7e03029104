// Command canvasdemo runs the full engine end to end: it pulls a
// generated image from a session source, adds user layers, composites
// the container with the software device, and writes the frame to a
// PNG next to an exported artifact JSON.
package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/gogpu/canvas"
	"github.com/gogpu/canvas/artifact"
	"github.com/gogpu/canvas/compositor"
	"github.com/gogpu/canvas/config"
	"github.com/gogpu/canvas/imagesync"
	"github.com/gogpu/canvas/layer"
	"github.com/gogpu/canvas/session"
	"github.com/gogpu/canvas/store"
	"github.com/gogpu/canvas/text"
)

func main() {
	var (
		configPath = flag.String("config", "", "config file (optional)")
		output     = flag.String("output", "demo.png", "rendered frame output")
		items      = flag.String("items", "demo.json", "exported artifact output")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	canvas.SetLogger(logger)

	if err := run(*configPath, *output, *items, logger); err != nil {
		logger.Error("demo failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath, output, items string, logger *slog.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	reg := text.NewRegistry()
	if err := reg.Register("Go", false, false, goregular.TTF); err != nil {
		return err
	}
	if err := reg.Register("Go", true, false, gobold.TTF); err != nil {
		return err
	}

	st := store.New(
		store.WithTextMeasurer(text.NewMeasurer(reg)),
		store.WithMaxHistory(cfg.History.MaxDepth),
	)

	conv := uuid.New()
	containerID := st.CreateContainer(uuid.New(), conv)

	// A session source standing in for the chat backend, holding one
	// generated image the engine will pull into the container.
	src := session.NewStore()
	src.Put(session.ImageSession{
		ConversationID: conv,
		Prompt:         "sunset gradient",
		Images:         []string{gradientDataURL(400, 300)},
	})

	engine, err := imagesync.New(st, src, cfg.EngineOptions()...)
	if err != nil {
		return err
	}
	defer engine.Close()

	if err := engine.SyncConversation(conv); err != nil {
		return err
	}
	if err := waitForTasks(engine, 1, 5*time.Second); err != nil {
		return err
	}

	// User-authored layers on top of the pulled image.
	if _, err := st.AddLayer(containerID, layer.KindText, &layer.TextContent{
		Text:       "Layered Canvas",
		FontFamily: "Go",
		FontSize:   48,
		Bold:       true,
		Color:      "#1a1a2e",
	}, store.WithName("Title"), store.WithPosition(40, 40)); err != nil {
		return err
	}

	dev := compositor.NewSoftwareDevice()
	comp, err := compositor.New(dev, cfg.Settings(),
		compositor.WithTextRasterizer(text.NewRasterizer(reg)))
	if err != nil {
		return err
	}
	defer comp.Cleanup()

	// Store mutations invalidate compositor caches through the event bus.
	events, cancel := st.Events().Subscribe(16)
	defer cancel()
	go func() {
		for ev := range events {
			comp.HandleEvent(ev)
		}
	}()

	cont, err := st.Container(containerID)
	if err != nil {
		return err
	}
	stats, err := comp.RenderFrame(context.Background(), cont)
	if err != nil {
		return err
	}
	logger.Info("frame rendered",
		"layers", stats.Layers,
		"batches", stats.Batches,
		"draw_calls", stats.DrawCalls,
		"uploads", stats.TextureUploads,
		"duration", stats.Duration)

	if err := writePNG(output, dev.Image()); err != nil {
		return err
	}

	exported, err := artifact.Export(st, containerID)
	if err != nil {
		return err
	}
	if err := writeJSON(items, exported); err != nil {
		return err
	}

	logger.Info("demo complete", "frame", output, "artifact", items)
	return nil
}

// waitForTasks polls the engine counters until n tasks finished.
func waitForTasks(e *imagesync.Engine, n uint64, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		s := e.Stats()
		if s.Processed+s.Failed >= n {
			if s.Failed > 0 {
				return fmt.Errorf("sync failed for %d task(s)", s.Failed)
			}
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	return fmt.Errorf("sync did not finish within %s", timeout)
}

// gradientDataURL builds a PNG data URL so the demo needs no network
// or asset files.
func gradientDataURL(w, h int) string {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			t := float64(y) / float64(h-1)
			i := img.PixOffset(x, y)
			img.Pix[i+0] = uint8(250 - 60*t)
			img.Pix[i+1] = uint8(150 - 90*t)
			img.Pix[i+2] = uint8(80 + 100*t)
			img.Pix[i+3] = 0xff
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func writePNG(path string, img *image.NRGBA) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		return err
	}
	return f.Close()
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
