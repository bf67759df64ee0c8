package main

import (
	"flag"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/vidmesh/mpfec/engine"
)

var remotes = flag.String("r", "127.0.0.1:9101,127.0.0.1:9102", "Comma-separated remote ip:port list")

// This is a minimal quick-start wiring the engine against a fixed remote
// path set taken from -r; it does not load a config file or report stats.
func main() {
	flag.Parse()
	log := logrus.NewEntry(logrus.StandardLogger())

	cfg := engine.DefaultConfig()
	for _, r := range strings.Split(*remotes, ",") {
		idx := strings.LastIndex(r, ":")
		if idx < 0 {
			log.Fatalf("bad remote %q, expected ip:port", r)
		}
		port, err := strconv.Atoi(r[idx+1:])
		if err != nil {
			log.WithError(err).Fatalf("bad port in %q", r)
		}
		cfg.Paths = append(cfg.Paths, engine.PathConfig{IP: r[:idx], Port: port})
	}
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	eng, err := engine.New(cfg, loggingSink{log}, log)
	if err != nil {
		log.WithError(err).Fatal("constructing engine")
	}
	if err := eng.Start(); err != nil {
		log.WithError(err).Fatal("starting engine")
	}
	defer eng.Stop()

	log.WithField("paths", len(cfg.Paths)).Info("engine running, Ctrl+C to stop")
	select {}
}

type loggingSink struct{ log *logrus.Entry }

func (s loggingSink) OnFrameReady(payload []byte, frameID uint32) {
	s.log.WithField("frame_id", frameID).WithField("bytes", len(payload)).Debug("frame ready")
}
