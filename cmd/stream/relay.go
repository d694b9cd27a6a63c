package main

import (
	"context"
	"errors"
	"expvar"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"pipelined.dev/stream"
	"pipelined.dev/stream/archive"
	"pipelined.dev/stream/codec"
	"pipelined.dev/stream/config"
	"pipelined.dev/stream/file"
	"pipelined.dev/stream/filter"
	"pipelined.dev/stream/icecast"
	"pipelined.dev/stream/lame"
	"pipelined.dev/stream/log"
	"pipelined.dev/stream/metadata"
	"pipelined.dev/stream/wav"
	"pipelined.dev/stream/websocket"
)

type relayCommand struct {
	in     stringList
	out    string
	wav    string
	listen string
	rate   int
	encode int
}

func (cmd *relayCommand) Name() string {
	return "relay"
}

func (cmd *relayCommand) Help() string {
	return "Relay files or a stream to icecast, archive, websocket and files"
}

func (cmd *relayCommand) Register(fs *flag.FlagSet) {
	fs.Var(&cmd.in, "in", "input file or http url, files can be repeated (required)")
	fs.StringVar(&cmd.out, "out", "", "file to save the relayed bytes")
	fs.StringVar(&cmd.wav, "wav", "", "wav file to save decoded audio")
	fs.StringVar(&cmd.listen, "listen", "", "websocket listen address, overrides "+config.Prefix+"LISTEN")
	fs.IntVar(&cmd.rate, "rate", 0, "bytes per second of file input, 0 derives it from format")
	fs.IntVar(&cmd.encode, "encode", 0, "encode PCM input to mp3 with provided bitrate")
}

func (cmd *relayCommand) Run(out io.Writer) error {
	cfg := config.Load()
	if cmd.listen != "" {
		cfg.Listen = cmd.listen
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Icecast == nil && cfg.Archive == nil && cfg.Listen == "" && cmd.out == "" && cmd.wav == "" {
		return errors.New("no outputs: set -out, -wav, -listen or icecast and archive environment")
	}
	logger := log.GetLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	in, err := openInput(ctx, cmd.in, logger)
	if err != nil {
		return err
	}
	defer in.close()
	m := in.source.Metadata()
	fmt.Fprintf(out, "Relaying %v\n", m)

	counter := filter.NewTimeCounter()
	b := stream.NewBuilder(in.source).To(counter)
	var tail stream.Source = counter
	if !in.live {
		rate := cmd.rate
		if rate == 0 {
			rate = byteRate(cmd.in[0], m)
		}
		if rate >= 0 {
			limiter := filter.NewRateLimit(rate)
			b.To(limiter)
			tail = limiter
		} else {
			logger.WithField("format", m.Format).Warn("unknown rate, input is not paced")
		}
	}

	encoded := tail
	if cmd.encode > 0 && m.Is(metadata.PCM) {
		encoder := lame.Encoder(cmd.encode, lame.DefaultQuality, codec.WithLogger(logger))
		b.Find(tail).To(encoder)
		encoded = encoder
	}
	if cfg.Icecast != nil {
		b.Find(encoded).To(icecast.NewSink(*cfg.Icecast, icecast.WithLogger(logger)))
	}
	if cfg.Archive != nil {
		b.Find(encoded).To(archive.NewSink(*cfg.Archive, archive.WithLogger(logger)))
	}
	if cmd.out != "" {
		b.Find(encoded).To(file.NewSink(cmd.out))
	}
	if cmd.wav != "" {
		b.Find(tail)
		if !m.Is(metadata.PCM) {
			decoder, err := decoderFor(m, logger)
			if err != nil {
				return err
			}
			b.To(decoder)
		}
		b.To(wav.NewSink(cmd.wav))
	}
	var server *http.Server
	if cfg.Listen != "" {
		broadcaster := websocket.NewBroadcaster(
			websocket.WithLogger(logger),
			websocket.WithQueueDepth(cfg.QueueDepth),
		)
		b.Find(encoded).To(broadcaster)
		mux := http.NewServeMux()
		mux.Handle("/", broadcaster)
		mux.Handle("/debug/vars", expvar.Handler())
		server = &http.Server{
			Addr:              cfg.Listen,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	p, err := b.Build(stream.WithChunkSize(cfg.ChunkSize), stream.WithLogger(logger))
	if err != nil {
		return err
	}
	if server != nil {
		go serve(server, logger)
		defer shutdown(server, logger)
	}
	if err := p.Start(ctx); err != nil {
		return err
	}
	return p.Wait()
}

func serve(server *http.Server, logger logrus.FieldLogger) {
	logger.WithField("address", server.Addr).Info("websocket server started")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Error("websocket server failed")
	}
}

func shutdown(server *http.Server, logger logrus.FieldLogger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Warn("websocket server shutdown failed")
	}
}
