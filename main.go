package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/moyoez/dlnacast-go/api"
	"github.com/moyoez/dlnacast-go/cast"
	"github.com/moyoez/dlnacast-go/tool"
)

func main() {
	flags := tool.SetFlags()
	appCfg, err := tool.LoadConfig(flags.UseConfigPath)
	if err != nil {
		tool.DefaultLogger.Fatalf("%v", err)
	}
	appCfg = tool.MergeFlags(appCfg, flags)

	// initialize logger
	tool.InitLogger()
	tool.SetLogMode(flags.Log)

	// Bind outgoing HTTP to the selected interface. Matters on multi-homed
	// hosts where the default route is not the renderer network.
	if appCfg.NetworkInterface != "" && appCfg.NetworkInterface != "*" {
		if ip, err := tool.AdvertiseIPv4(appCfg.NetworkInterface); err == nil {
			tool.InitHTTPClients(&net.TCPAddr{IP: net.ParseIP(ip)})
			tool.DefaultLogger.Infof("HTTP clients bound to %s (%s)", ip, appCfg.NetworkInterface)
		} else {
			tool.DefaultLogger.Warnf("Failed to resolve interface %s: %v", appCfg.NetworkInterface, err)
		}
	}

	engine, err := cast.NewEngine(appCfg)
	if err != nil {
		tool.DefaultLogger.Fatalf("Failed to create cast engine: %v", err)
	}
	if err := engine.Start(); err != nil {
		tool.DefaultLogger.Fatalf("Failed to start discovery: %v", err)
	}

	apiServer := api.NewServer(appCfg.Port, engine)
	go func() {
		if err := apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			tool.DefaultLogger.Fatalf("API server startup failed: %v", err)
		}
	}()

	// Warm the device list so the first /devices call has something to show.
	go func() {
		if _, err := engine.Search(context.Background(), 0, nil); err != nil {
			tool.DefaultLogger.Warnf("Initial search failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	tool.DefaultLogger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		tool.DefaultLogger.Errorf("API server shutdown: %v", err)
	}
	engine.Close()
}
