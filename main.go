package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/powerpuffpenguin/sniroute/config"
	"github.com/powerpuffpenguin/sniroute/forwarding"
	ver "github.com/powerpuffpenguin/sniroute/version"
)

func main() {
	var (
		conf, logLevel string
		version, help  bool
	)
	flag.StringVar(&conf, "config", "", "Load config file path")
	flag.StringVar(&logLevel, "log-level", "", "Override logger level: debug info warn error")
	flag.BoolVar(&version, "version", false, "Show version")
	flag.BoolVar(&help, "help", false, "Show help")
	flag.Parse()
	if version {
		fmt.Printf(`sniroute-%s
%s/%s, %s, %s, %s
`,
			ver.Version,
			runtime.GOOS, runtime.GOARCH,
			runtime.Version(),
			ver.Date, ver.Commit,
		)
		return
	} else if help {
		flag.PrintDefaults()
		return
	} else if conf == `` {
		flag.PrintDefaults()
		os.Exit(2)
	}

	log.SetFlags(log.Lshortfile | log.LstdFlags)
	var c config.Config
	e := c.Load(conf)
	if e != nil {
		log.Println(e)
		os.Exit(2)
	}
	app, e := forwarding.NewApplication(&c, logLevel)
	if e != nil {
		log.Println(e)
		os.Exit(2)
	}

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-ch
		app.Logger().Info(`shutdown`, `signal`, sig.String())
		app.Shutdown()
	}()
	if e = app.Serve(); e != nil {
		log.Println(e)
		os.Exit(1)
	}
}
