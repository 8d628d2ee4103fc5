// Command gonode runs the input-transformation engine: it loads a
// config, starts the embedded script host, and evaluates the
// configured script, which wires up readers, mappers and writers.
package main

import (
	"flag"
	"log"
	"os"

	"github.com/miken90/gonode/config"
	"github.com/miken90/gonode/script"
	"github.com/miken90/gonode/supervisor"
)

var Version = "0.1.0-dev"

func main() {
	scriptFlag := flag.String("script", "", "script file to run (overrides config.toml's script_path)")
	flag.Parse()

	log.Printf("gonode v%s starting...", Version)

	cfg, err := config.Load()
	if err != nil {
		log.Printf("using default config: %v", err)
		cfg = config.Default()
	}

	scriptPath := cfg.ResolvedScriptPath()
	if *scriptFlag != "" {
		scriptPath = *scriptFlag
	}

	sup := supervisor.New()

	host, err := script.NewHost(sup)
	if err != nil {
		log.Fatalf("failed to start script host: %v", err)
	}

	if err := host.RunFile(scriptPath); err != nil {
		log.Fatalf("failed to run %s: %v", scriptPath, err)
	}

	os.Exit(sup.Wait())
}
