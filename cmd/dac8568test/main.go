// dac8568test walks every channel of a DAC8568 between half scale and zero,
// for checking the wiring with a scope or a meter
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"

	"golang.org/x/time/rate"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spitest"
	"periph.io/x/host/v3"

	"github.com/nasa-jpl/cavitytune/ti"
	"github.com/nasa-jpl/cavitytune/util"
)

func main() {
	var (
		port   = flag.String("port", "", "SPI port name, empty for the first port")
		hz     = flag.Int64("hz", 10000000, "SCLK frequency")
		mode   = flag.Int("mode", 1, "SPI mode")
		clr    = flag.String("clr", "", "GPIO wired to CLR, optional")
		step   = flag.Float64("step", 0.1, "seconds between writes")
		cycles = flag.Int("n", 0, "number of cycles, 0 runs until interrupted")
		mock   = flag.Bool("mock", false, "log the words instead of sending them")
	)
	flag.Parse()

	dac, err := open(*mock, *port, *hz, *mode, *clr)
	if err != nil {
		log.Fatal(err)
	}
	defer dac.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	log.Println("clearing, resetting, enabling the internal reference and powering up")
	if err = dac.HardwareClear(); err != nil {
		log.Println("no hardware clear:", err)
	}
	if err = dac.Init(); err != nil {
		log.Fatal(err)
	}
	// channel A drives every output, as a first sign of life
	if err = dac.WriteAndUpdateAll(ti.FullScale); err != nil {
		log.Fatal(err)
	}

	lim := rate.NewLimiter(rate.Every(util.SecsToDuration(*step)), 1)
	channels := util.ArangeByte(ti.NumChannels)
	for i := 0; *cycles == 0 || i < *cycles; i++ {
		for _, level := range []float64{0.5, 0} {
			for _, c := range channels {
				if err = lim.Wait(ctx); err != nil {
					log.Println("stopping:", err)
					return
				}
				ch := ti.Channel(c)
				if err = dac.OutputFraction(ch, level); err != nil {
					log.Fatal(err)
				}
				v, _ := dac.CurrentVoltage(ch)
				log.Printf("channel %s at %.4f V\n", ch, v)
			}
		}
	}
}

func open(mock bool, port string, hz int64, mode int, clr string) (*ti.DAC8568, error) {
	cal := ti.DefaultCalibration
	if mock {
		return ti.NewSPI(&spitest.Record{}, ti.DefaultSPIConfig, cal, ti.WithDebug(true))
	}
	if _, err := host.Init(); err != nil {
		return nil, err
	}
	var opts []ti.Option
	if clr != "" {
		var p gpio.PinIO = gpioreg.ByName(clr)
		if p == nil {
			log.Fatalf("no GPIO named %q", clr)
		}
		opts = append(opts, ti.WithClearPin(p))
	}
	cfg := ti.SPIConfig{Frequency: physic.Frequency(hz) * physic.Hertz, Mode: spi.Mode(mode)}
	return ti.Open(port, cfg, cal, opts...)
}
