package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/obsidian-irc/obbyscript/pkg/server"
)

// envDefault returns the environment variable value if set, otherwise the fallback.
func envDefault(envVar, fallback string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	return fallback
}

func main() {
	confFile := flag.String("conf", envDefault("OBBY_CONF", ""), "Path to server config file (env: OBBY_CONF)")
	listen := flag.String("listen", envDefault("OBBY_LISTEN", ""), "Listen address, overrides config (env: OBBY_LISTEN)")
	scripts := flag.String("scripts", envDefault("OBBY_SCRIPTS", ""), "Comma-separated script paths, overrides config (env: OBBY_SCRIPTS)")
	stateFile := flag.String("state", envDefault("OBBY_STATE", ""), "Path to persistent variable state file (env: OBBY_STATE)")
	configTest := flag.Bool("configtest", false, "Validate config and scripts, then exit")
	genSecret := flag.Bool("gen-jwt-secret", false, "Print a random jwt_secret value and exit")
	hashPass := flag.String("hashpass", "", "Print a bcrypt hash for the given password and exit")
	flag.Parse()

	if *genSecret {
		fmt.Println(server.GenerateJWTSecret())
		return
	}
	if *hashPass != "" {
		h, err := server.HashOperPassword(*hashPass)
		if err != nil {
			log.Fatalf("hashing password: %v", err)
		}
		fmt.Println(h)
		return
	}

	log.Printf("Welcome to %s", server.VersionString())

	conf := server.DefaultConf()
	if *confFile != "" {
		var err error
		conf, err = server.LoadConf(*confFile)
		if err != nil {
			log.Fatalf("Error loading config: %v", err)
		}
		log.Printf("Loaded config from %s", *confFile)
	}

	// Flags override config file values.
	if *listen != "" {
		conf.Listen = *listen
	}
	if *scripts != "" {
		conf.Scripts = strings.Split(*scripts, ",")
	}
	if *stateFile != "" {
		conf.StateFile = *stateFile
	}

	if len(conf.Scripts) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: obbyscriptd -conf <config.yaml> [-listen :6667] [-scripts a.obby,b.obby]")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Environment variables (used as defaults when flags are not set):")
		fmt.Fprintln(os.Stderr, "  OBBY_CONF     Path to server config file (.yaml)")
		fmt.Fprintln(os.Stderr, "  OBBY_LISTEN   Listen address (e.g. :6667)")
		fmt.Fprintln(os.Stderr, "  OBBY_SCRIPTS  Comma-separated script paths")
		fmt.Fprintln(os.Stderr, "  OBBY_STATE    Path to persistent variable state file")
		os.Exit(1)
	}

	s := server.NewServer(conf, log.Default())

	if *configTest {
		if err := s.Engine.ConfigTest(conf.Scripts); err != nil {
			log.Fatalf("Config test failed: %v", err)
		}
		log.Printf("Config test passed: %d script file(s) ok", len(conf.Scripts))
		return
	}

	if conf.StateFile != "" {
		store, err := server.OpenStore(conf.StateFile)
		if err != nil {
			log.Fatalf("Error opening state file: %v", err)
		}
		defer store.Close()
		s.Engine.Store = store
		log.Printf("Persistent variables in %s", store.Path())
	}

	if conf.AuditEnabled {
		audit, err := server.OpenAuditLog(conf.AuditDatabase)
		if err != nil {
			log.Fatalf("Error opening audit database: %v", err)
		}
		defer audit.Close()
		s.AttachAudit(audit)
		log.Printf("Audit log in %s", audit.Path())
	}

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
		for got := range sig {
			if got == syscall.SIGHUP {
				log.Printf("SIGHUP received, rehashing scripts")
				s.Do(func() { s.Rehash() })
				continue
			}
			log.Printf("Shutting down")
			s.Stop()
			return
		}
	}()

	if err := s.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
