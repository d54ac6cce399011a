package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"
	"github.com/tacusci/logging/v2"
	"github.com/takama/daemon"
	"github.com/tauraamui/framerelay/internal/config"
	"github.com/tauraamui/framerelay/pkg/configdef"
	"github.com/tauraamui/framerelay/pkg/log"
	"github.com/tauraamui/framerelay/pkg/relay"
)

const (
	name        = "framerelay"
	description = "Frame relay daemon which fans live camera streams out into shared memory frame buffers"
)

var (
	configPath = pflag.String("config", "", "path to the config file, overrides FRAMERELAY_CONFIG")
	backend    = pflag.String("backend", "", "video backend to decode with: ffmpeg, opencv or mock")
)

type Service struct {
	daemon.Daemon
}

// flagResolver applies command line overrides on top of the config file.
type flagResolver struct {
	base    configdef.Resolver
	backend string
}

func (r flagResolver) Resolve() (configdef.Values, error) {
	values, err := r.base.Resolve()
	if err != nil {
		return configdef.Values{}, err
	}
	if len(r.backend) > 0 {
		values.VideoBackend = r.backend
		if err := values.RunValidate(); err != nil {
			return configdef.Values{}, err
		}
	}
	return values, nil
}

// Setup writes a default config file for the service to load.
func (service *Service) Setup() (string, error) {
	log.Info("Setting up framerelay service...")

	err := config.DefaultCreator().Create()
	if err != nil {
		if !errors.Is(err, configdef.ErrConfigAlreadyExists) {
			return "", err
		}
		log.Error(err.Error())
	}

	return "Setup successful...", nil
}

func (service *Service) RemoveSetup() (string, error) {
	log.Info("Removing setup for framerelay service...")
	if err := config.DefaultDestroyer().Destroy(); err != nil {
		log.Error("unable to delete config file: %s", err.Error())
	}

	return "Removing setup successful...", nil
}

func (service *Service) Manage() (string, error) {
	usage := "Usage: framerelay setup | remove-setup | install | remove | start | stop | status"

	if args := pflag.Args(); len(args) > 0 {
		switch args[0] {
		case "setup":
			return service.Setup()
		case "remove-setup":
			return service.RemoveSetup()
		case "install":
			return service.Install()
		case "remove":
			return service.Remove()
		case "start":
			return service.Start()
		case "stop":
			return service.Stop()
		case "status":
			return service.Status()
		default:
			return usage, nil
		}
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	log.Info("Starting frame relay...")

	server, err := relay.NewServer(flagResolver{base: config.DefaultResolver(), backend: *backend}, nil)
	if err != nil {
		log.Fatal(err.Error())
	}

	ctx, cancelStartup := context.WithCancel(context.Background())
	go startupServer(ctx, server)

	killSignal := <-interrupt
	fmt.Print("\r")
	log.Error("Received signal: %s", killSignal)

	cancelStartup()
	log.Info("Shutting down server...")
	logBufferStats(server)
	<-server.Shutdown()

	return "Shutdown successful... BYE! 👋", nil
}

func startupServer(ctx context.Context, server *relay.Server) {
	errs := server.ConnectWithCancel(ctx)
	for _, err := range errs {
		log.Error(err.Error())
	}
	if ctx.Err() != nil {
		return
	}
	server.RunProcesses()
}

func logBufferStats(server *relay.Server) {
	for _, status := range server.Sources().StatusAll() {
		in, out, ok := server.Sources().BufferStats(status.ID)
		if !ok {
			continue
		}
		log.Info(
			"Source [%s] relayed %s frames, %s evicted before sampling, %s evicted before display",
			status.ID,
			humanize.Comma(int64(out.Writes)),
			humanize.Comma(int64(in.Evictions)),
			humanize.Comma(int64(out.Evictions)),
		)
	}
}

func init() {
	logging.CallbackLabelLevel = 5
	logging.ColorLogLevelLabelOnly = true
	loggingLevel := os.Getenv("FRAMERELAY_LOGGING_LEVEL")

	switch strings.ToLower(loggingLevel) {
	case "info":
		logging.CurrentLoggingLevel = logging.InfoLevel
	case "warn":
		logging.CurrentLoggingLevel = logging.WarnLevel
	case "debug":
		logging.CurrentLoggingLevel = logging.DebugLevel
		logging.CallbackLabel = true
	default:
		logging.CurrentLoggingLevel = logging.WarnLevel
	}
}

func main() {
	pflag.Parse()
	if len(*configPath) > 0 {
		os.Setenv("FRAMERELAY_CONFIG", *configPath)
	}

	daemonType := daemon.SystemDaemon
	if runtime.GOOS == "darwin" {
		daemonType = daemon.UserAgent
	}

	srv, err := daemon.New(name, description, daemonType)
	if err != nil {
		logging.Error(err.Error()) //nolint
		os.Exit(1)
	}

	service := &Service{srv}
	status, err := service.Manage()
	if err != nil {
		logging.Error(err.Error()) //nolint
		os.Exit(1)
	}

	logging.Info(status) //nolint
}
