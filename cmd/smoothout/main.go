// smoothout plays a waveform out of a DAC8568.  With no file it plays one
// period of a sine between zero and full scale on one channel; with -csv
// it plays a file with one column per channel, every row applied to all of
// its channels at the same instant.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"os/signal"

	"golang.org/x/time/rate"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spitest"
	"periph.io/x/host/v3"

	"github.com/nasa-jpl/cavitytune/generichttp/daq"
	"github.com/nasa-jpl/cavitytune/mathx"
	"github.com/nasa-jpl/cavitytune/ti"
)

// sine returns n samples of one period of a sine spanning [0, 1]
func sine(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = mathx.Clamp(math.Sin(float64(i)/float64(n)*2*math.Pi)/2+0.5, 0, 1)
	}
	return out
}

// frames transposes per channel waveforms into rows of simultaneous samples
func frames(wvs []daq.Waveform) ([]int, [][]float64, error) {
	if len(wvs) == 0 {
		return nil, nil, fmt.Errorf("waveform file has no columns")
	}
	chans := make([]int, len(wvs))
	n := len(wvs[0].Volts)
	for i, w := range wvs {
		if len(w.Volts) != n {
			return nil, nil, fmt.Errorf("channel %d has %d samples, channel %d has %d", w.Channel, len(w.Volts), wvs[0].Channel, n)
		}
		chans[i] = w.Channel
	}
	rows := make([][]float64, n)
	for j := range rows {
		rows[j] = make([]float64, len(wvs))
		for i := range wvs {
			rows[j][i] = wvs[i].Volts[j]
		}
	}
	return chans, rows, nil
}

func main() {
	var (
		port    = flag.String("port", "", "SPI port name, empty for the first port")
		hz      = flag.Int64("hz", 100000, "SCLK frequency")
		channel = flag.String("ch", "A", "channel for the sine, A-H")
		points  = flag.Int("n", 1000, "samples per period of the sine")
		sps     = flag.Float64("rate", 1000, "samples per second")
		csvfile = flag.String("csv", "", "waveform file, first row is channel numbers")
		once    = flag.Bool("once", false, "play one period and stop")
		mock    = flag.Bool("mock", false, "record the words instead of sending them")
	)
	flag.Parse()

	var (
		dac *ti.DAC8568
		err error
	)
	if *mock {
		dac, err = ti.NewSPI(&spitest.Record{}, ti.DefaultSPIConfig, ti.DefaultCalibration)
	} else {
		if _, err = host.Init(); err != nil {
			log.Fatal(err)
		}
		cfg := ti.SPIConfig{Frequency: physic.Frequency(*hz) * physic.Hertz, Mode: spi.Mode1}
		dac, err = ti.Open(*port, cfg, ti.DefaultCalibration)
	}
	if err != nil {
		log.Fatal(err)
	}
	defer dac.Close()
	if err = dac.Init(); err != nil {
		log.Fatal(err)
	}

	// play writes sample i; the sine and the file differ only in this
	var (
		play func(i int) error
		n    int
	)
	if *csvfile == "" {
		ch, err := ti.ParseChannel(*channel)
		if err != nil || ch == ti.AllChannels {
			log.Fatalf("bad channel %q", *channel)
		}
		y := sine(*points)
		n = len(y)
		play = func(i int) error { return dac.OutputFraction(ch, y[i]) }
	} else {
		f, err := os.Open(*csvfile)
		if err != nil {
			log.Fatal(err)
		}
		wvs, err := daq.ReadWaveformCSV(f)
		f.Close()
		if err != nil {
			log.Fatal(err)
		}
		chans, rows, err := frames(wvs)
		if err != nil {
			log.Fatal(err)
		}
		n = len(rows)
		play = func(i int) error { return dac.OutputMulti(chans, rows[i]) }
	}
	if n == 0 {
		log.Fatal("nothing to play")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	lim := rate.NewLimiter(rate.Limit(*sps), 1)
	log.Printf("playing %d samples at %g samples/s\n", n, *sps)
	for {
		for i := 0; i < n; i++ {
			if err = lim.Wait(ctx); err != nil {
				log.Println("stopping:", err)
				return
			}
			if err = play(i); err != nil {
				log.Fatal(err)
			}
		}
		if *once {
			return
		}
	}
}
