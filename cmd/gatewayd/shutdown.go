package main

import (
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// signalHandler returns a channel that fires once on SIGINT/SIGTERM/SIGHUP,
// adapted from the teacher's signal-then-drain shutdown pattern.
func signalHandler() <-chan bool {
	stop := make(chan bool)
	signchan := make(chan os.Signal, 1)
	signal.Notify(signchan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	go func() {
		sig := <-signchan
		log.Printf("gatewayd: signal received: %s, shutting down", sig)
		stop <- true
	}()
	return stop
}

// listenAndServe runs srv on addr until stop fires, then closes the
// listener, flushes the Store and returns. New connections stop being
// accepted before the Store flush so in-flight writes land on a consistent
// state (§4.11 "stop accepting new sessions, flush Store, close listeners").
func listenAndServe(addr string, srv *http.Server, stop <-chan bool, onShutdown func()) error {
	shuttingDown := false
	httpdone := make(chan bool)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	go func() {
		err = srv.Serve(tcpGracefulListener{ln.(*net.TCPListener)})
		if shuttingDown {
			err = nil
			log.Printf("gatewayd: http server stopped")
		}
		httpdone <- true
	}()

	for {
		select {
		case <-stop:
			shuttingDown = true
			ln.Close()
			<-httpdone
			onShutdown()
			return nil
		case <-httpdone:
			return err
		}
	}
}

type tcpGracefulListener struct {
	*net.TCPListener
}

func (ln tcpGracefulListener) Accept() (net.Conn, error) {
	tc, err := ln.AcceptTCP()
	if err != nil {
		return nil, err
	}
	tc.SetKeepAlive(true)
	tc.SetKeepAlivePeriod(3 * time.Minute)
	return tc, nil
}
