// Package daq provides a generic HTTP interface to DAC devices
//
// This is not the last word in speed, due to HTTP having reasonable latency in
// most client languages, but it is the last word in ease of use.
package daq

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"go/types"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	"github.com/nasa-jpl/cavitytune/generichttp"
	"github.com/nasa-jpl/cavitytune/server"
	"github.com/nasa-jpl/cavitytune/ti"
)

// errorStatus is 400 for input the DAC refused, 500 otherwise
func errorStatus(err error) int {
	var verr *ti.ValidationError
	if errors.As(err, &verr) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// DAC is a model for simple digital to analog converter
type DAC interface {
	// Output sends a voltage on a given channel
	Output(int, float64) error

	// OutputDN16 sends a data number on a given channel
	OutputDN16(int, uint16) error
}

// HTTPBasicDAC adds routes for basic DAC operation to a table
func HTTPBasicDAC(iface DAC, table generichttp.RouteTable) {
	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/output"}] = Output(iface)
	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/output-dn-16"}] = OutputDN16(iface)
}

type channelVoltage struct {
	Channel int `json:"channel"`

	Voltage float64 `json:"voltage"`
}

type channelDN struct {
	Channel int `json:"channel"`

	DN uint16 `json:"dn"`
}

// Output returns an HTTP handlerfunc that will write a voltage to a channel
func Output(d DAC) http.HandlerFunc {
	return channelVoltageHandler(d.Output)
}

// OutputDN16 returns an HTTP handlerfunc that will write a data number to a channel
func OutputDN16(d DAC) http.HandlerFunc {
	return channelDNHandler(d.OutputDN16)
}

func channelVoltageHandler(fcn func(int, float64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input channelVoltage
		err := json.NewDecoder(r.Body).Decode(&input)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		err = fcn(input.Channel, input.Voltage)
		if err != nil {
			http.Error(w, err.Error(), errorStatus(err))
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func channelDNHandler(fcn func(int, uint16) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input channelDN
		err := json.NewDecoder(r.Body).Decode(&input)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		err = fcn(input.Channel, input.DN)
		if err != nil {
			http.Error(w, err.Error(), errorStatus(err))
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// MultiChannelDAC allows multiple channels to be written
// at once
type MultiChannelDAC interface {
	DAC

	// OutputMulti writes a sequence of voltages to a sequence of channels
	OutputMulti([]int, []float64) error

	// OutputMultiDN16 outputs a sequence of data numbers to a sequence of channels
	OutputMultiDN16([]int, []uint16) error
}

// HTTPMultiChannel adds routes for multi channel output to the table
func HTTPMultiChannel(iface MultiChannelDAC, table generichttp.RouteTable) {
	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/output-multi"}] = OutputMulti(iface)
	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/output-multi-dn-16"}] = OutputMultiDN16(iface)
}

type channelsVoltages struct {
	Channels []int `json:"channel"`

	Voltages []float64 `json:"voltage"`
}

type channelsDNs struct {
	Channels []int `json:"channel"`

	DNs []uint16 `json:"dn"`
}

// OutputMulti returns an HTTP handlerfunc that will write voltages to channels
func OutputMulti(d MultiChannelDAC) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input channelsVoltages
		err := json.NewDecoder(r.Body).Decode(&input)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		err = d.OutputMulti(input.Channels, input.Voltages)
		if err != nil {
			http.Error(w, err.Error(), errorStatus(err))
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// OutputMultiDN16 returns an HTTP handlerfunc that will write data numbers to channels
func OutputMultiDN16(d MultiChannelDAC) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input channelsDNs
		err := json.NewDecoder(r.Body).Decode(&input)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		err = d.OutputMultiDN16(input.Channels, input.DNs)
		if err != nil {
			http.Error(w, err.Error(), errorStatus(err))
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// BufferedDAC is a double buffered DAC; values are written to input
// registers and moved to the outputs together
type BufferedDAC interface {
	// Buffer writes a voltage to the input register of a channel
	Buffer(int, float64) error

	// BufferDN16 writes a data number to the input register of a channel
	BufferDN16(int, uint16) error

	// UpdateAll moves every input register to its output
	UpdateAll() error
}

// HTTPBuffered adds routes for double buffered output to the table
func HTTPBuffered(iface BufferedDAC, table generichttp.RouteTable) {
	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/buffer"}] = channelVoltageHandler(iface.Buffer)
	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/buffer-dn-16"}] = channelDNHandler(iface.BufferDN16)
	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/update"}] = generichttp.Do(iface.UpdateAll)
}

// ClearableDAC can be cleared to a fixed level and reset
type ClearableDAC interface {
	// Clear sets every output to a named level
	Clear(string) error

	// Reset returns the device to its power on state
	Reset() error
}

// HTTPClearable adds routes for clear and reset to the table
func HTTPClearable(iface ClearableDAC, table generichttp.RouteTable) {
	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/clear"}] = Clear(iface)
	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/reset"}] = generichttp.Do(iface.Reset)
}

// Clear returns an HTTP handlerfunc that clears to the level named by
// {"str": "zero" | "mid" | "full"}
func Clear(d ClearableDAC) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input server.StrT
		err := json.NewDecoder(r.Body).Decode(&input)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err = d.Clear(input.Str); err != nil {
			http.Error(w, err.Error(), errorStatus(err))
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// ReadbackDAC can report the voltage last commanded on a channel
type ReadbackDAC interface {
	Voltage(int) (float64, error)
}

// ChannelPowerDAC can power channels up and down
type ChannelPowerDAC interface {
	SetChannelPower(int, bool) error
	GetChannelPower(int) (bool, error)
}

type channelPower struct {
	Channel int `json:"channel"`

	On bool `json:"on"`
}

// channelParam parses the {channel} URL parameter
func channelParam(r *http.Request) (int, error) {
	return strconv.Atoi(chi.URLParam(r, "channel"))
}

// Voltage returns an HTTP handlerfunc that replies with the voltage of the
// channel in the URL
func Voltage(d ReadbackDAC) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ch, err := channelParam(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		v, err := d.Voltage(ch)
		if err != nil {
			http.Error(w, err.Error(), errorStatus(err))
			return
		}
		hp := server.HumanPayload{T: types.Float64, Float: v}
		hp.EncodeAndRespond(w, r)
	}
}

// SetChannelPower returns an HTTP handlerfunc that powers a channel up or down
func SetChannelPower(d ChannelPowerDAC) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input channelPower
		err := json.NewDecoder(r.Body).Decode(&input)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		err = d.SetChannelPower(input.Channel, input.On)
		if err != nil {
			http.Error(w, err.Error(), errorStatus(err))
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// GetChannelPower returns an HTTP handlerfunc that replies with the power
// state of the channel in the URL
func GetChannelPower(d ChannelPowerDAC) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ch, err := channelParam(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		on, err := d.GetChannelPower(ch)
		if err != nil {
			http.Error(w, err.Error(), errorStatus(err))
			return
		}
		hp := server.HumanPayload{T: types.Bool, Bool: on}
		hp.EncodeAndRespond(w, r)
	}
}

// Waveform is a sequence of voltages for one channel
type Waveform struct {
	Channel int

	Volts []float64
}

// ReadWaveformCSV parses a CSV file with one column per channel.  The
// first row holds the channel numbers, every row after holds one sample
// per channel.
func ReadWaveformCSV(r io.Reader) ([]Waveform, error) {
	var out []Waveform
	reader := csv.NewReader(r)
	skip := true
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return out, err
		}
		if skip {
			skip = false
			// allocate; one column per channel.  Leak to outer scope
			out = make([]Waveform, len(record))
			for i := 0; i < len(record); i++ {
				c, err := strconv.Atoi(record[i])
				if err != nil {
					return out, err
				}
				out[i].Channel = c
			}
			continue
		}
		for i := 0; i < len(record); i++ {
			f, err := strconv.ParseFloat(record[i], 64)
			if err != nil {
				return out, err
			}
			out[i].Volts = append(out[i].Volts, f)
		}
	}
	return out, nil
}

// HTTPDAC is a type that allows setting up a DAC satisfying any combination
// of the interfaces in this package to an HTTP interface
type HTTPDAC struct {
	d DAC

	RouteTable generichttp.RouteTable
}

// NewHTTPDAC sets up an HTTP interface to a DAC
func NewHTTPDAC(d DAC) HTTPDAC {
	w := HTTPDAC{d: d}
	rt := generichttp.RouteTable{}
	HTTPBasicDAC(d, rt)
	if md, ok := (d).(MultiChannelDAC); ok {
		HTTPMultiChannel(md, rt)
	}
	if bd, ok := (d).(BufferedDAC); ok {
		HTTPBuffered(bd, rt)
	}
	if cd, ok := (d).(ClearableDAC); ok {
		HTTPClearable(cd, rt)
	}
	if rd, ok := (d).(ReadbackDAC); ok {
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/voltage/{channel}"}] = Voltage(rd)
	}
	if pd, ok := (d).(ChannelPowerDAC); ok {
		rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/power"}] = SetChannelPower(pd)
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/power/{channel}"}] = GetChannelPower(pd)
	}
	w.RouteTable = rt
	return w
}

// RT satisfies the generichttp.HTTPer interface
func (h HTTPDAC) RT() generichttp.RouteTable {
	return h.RouteTable
}
