// Command loop is a headless room client: it joins a room by token,
// subscribes to the session coordinator and logs every state
// transition. It stands in for the UI surface in front of the
// coordinator.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mkohler/loop/internal/adapters/media"
	"github.com/mkohler/loop/internal/app"
	"github.com/mkohler/loop/internal/client"
	"github.com/mkohler/loop/internal/clock"
	"github.com/mkohler/loop/internal/config"
	"github.com/mkohler/loop/internal/core"
	"github.com/mkohler/loop/internal/dispatch"
	"github.com/mkohler/loop/internal/domain"
)

func main() {
	createName := flag.String("create", "", "create a room with this name and join it")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
	}

	rooms := client.NewRooms(cfg.ServerURL, nil)

	var token domain.RoomToken
	switch {
	case *createName != "":
		info, err := rooms.Create(ctx, *createName, 0)
		if err != nil {
			log.Fatal().Err(err).Msg("room create failed")
		}
		log.Info().Str("room", string(info.Token)).Str("url", info.URL).Msg("room created")
		token = info.Token
	case flag.NArg() == 1:
		token = domain.RoomToken(flag.Arg(0))
	default:
		log.Fatal().Msg("usage: loop [-create NAME] | loop ROOM_TOKEN")
	}

	dispatcher := dispatch.New()
	driver := media.NewDriver(dispatcher, cfg.ServerURL, media.DefaultWebRTCConfig())
	coordinator := app.New(app.Config{
		Dispatcher:  dispatcher,
		Client:      rooms,
		Driver:      driver,
		Clock:       clock.Real(),
		DisplayName: cfg.DisplayName,
		Context:     ctx,
	})

	remove := coordinator.AddListener(func(s core.State) {
		ev := log.Info().
			Str("state", string(s.RoomState)).
			Bool("audio_muted", s.AudioMuted).
			Bool("video_muted", s.VideoMuted)
		if s.Err != nil {
			ev = ev.Err(s.Err)
		}
		ev.Msg("room")
	})
	defer remove()

	dispatcher.Dispatch(dispatch.SetupWindowData{Token: token})

	<-ctx.Done()
	dispatcher.Dispatch(dispatch.WindowUnload{})
	// Give the fire-and-forget leave a moment to reach the server.
	time.Sleep(500 * time.Millisecond)
	log.Info().Msg("bye")
}
