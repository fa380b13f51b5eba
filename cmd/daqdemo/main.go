// Command daqdemo is the wiring entry point for this repo: it builds a
// small device tree (a signal generator feeding the built-in Statistics
// block), exposes it over the remote-mirror RPC server, then dials that
// same server as a client and attaches a streaming source to mirror one
// signal locally, the way a real client mirror/streaming deployment would.
// Grounded on whitaker-io-machine/cmd/cmd/serve.go's listen-then-wait-for-
// SIGINT shape, minus the cobra/viper CLI wrapper this repo has no use for
// (see DESIGN.md).
package main

import (
	"fmt"
	"os"
	ossignal "os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/daqkit/daqrun/component"
	"github.com/daqkit/daqrun/configprotocol"
	"github.com/daqkit/daqrun/coreevent"
	"github.com/daqkit/daqrun/coreobjects"
	"github.com/daqkit/daqrun/functionblock"
	"github.com/daqkit/daqrun/functionblock/reffb"
	"github.com/daqkit/daqrun/signal"
	"github.com/daqkit/daqrun/streaming"
)

const (
	listenAddr   = ":7777"
	generatorHz  = 20 * time.Millisecond
	blockSamples = 10
)

func main() {
	logger := logrus.StandardLogger()

	bus := coreevent.NewBus()
	tm := coreobjects.NewTypeManager(bus)
	fbCtx := functionblock.NewContext(tm, bus)
	reffb.Register(fbCtx.Modules)

	root, dsp, producer, out := buildDeviceTree(fbCtx, bus, tm)

	srv := configprotocol.NewServer(dsp, adminOnlyAuth(), logger)

	stopGenerator := make(chan struct{})
	go runGenerator(producer, stopGenerator, logger)

	go func() {
		if err := srv.App().Listen(listenAddr); err != nil {
			logger.WithError(err).Error("daqdemo: server stopped")
		}
	}()
	time.Sleep(200 * time.Millisecond) // let the listener bind before the demo client dials it

	stopMirror := runMirrorClient(root, out, logger)

	quit := make(chan os.Signal, 1)
	ossignal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	close(stopGenerator)
	if stopMirror != nil {
		stopMirror()
	}
	if err := srv.App().Shutdown(); err != nil {
		logger.WithError(err).Warn("daqdemo: error during shutdown")
	}
}

// buildDeviceTree wires one producer block (a raw Out signal on a linear
// domain) into the built-in Statistics block, under a root folder shaped
// like the device trees the config protocol dispatcher expects (§3, §4.8).
func buildDeviceTree(fbCtx *functionblock.Context, bus *coreevent.Bus, tm *coreobjects.TypeManager) (*component.Folder, *configprotocol.Dispatcher, *functionblock.FunctionBlock, *signal.Signal) {
	root := component.NewFolder("daqdemo", "IDevice", tm, bus)
	root.SetPermissions(component.PermissionTable{
		"admin": component.PermRead | component.PermWrite | component.PermExecute,
		"guest": component.PermRead,
	})

	producer, err := functionblock.New(fbCtx, "daqdemo.producer", "producer", nil, nil)
	must(err)
	out, err := producer.AddSignal("Out")
	must(err)
	out.SetDescriptor(signal.NewDataDescriptor(signal.SampleFloat64, signal.LinearRule(0, 1)))
	must(root.Add(producer.Folder.Component))

	stats, err := reffb.NewStatistics(fbCtx, "stats", nil)
	must(err)
	must(stats.InputPort().Connect(out))
	must(root.Add(stats.FunctionBlock.Folder.Component))

	dsp := configprotocol.NewDispatcher(root, fbCtx.Modules, fbCtx, tm, bus)
	dsp.RegisterFunctionBlock(producer)
	dsp.RegisterFunctionBlock(stats.FunctionBlock)

	return root, dsp, producer, out
}

// runGenerator pushes a fresh block of synthetic samples onto Out every
// tick until stop closes, standing in for a real acquisition source.
func runGenerator(producer *functionblock.FunctionBlock, stop <-chan struct{}, logger *logrus.Logger) {
	out := producer.GetSignals(false)[0]
	ticker := time.NewTicker(generatorHz)
	defer ticker.Stop()

	var tick int64
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			samples := make([]float64, blockSamples)
			for i := range samples {
				samples[i] = float64(tick+int64(i)) * 0.1
			}
			raw, err := signal.EncodeFloat64(samples, signal.SampleFloat64)
			if err != nil {
				logger.WithError(err).Warn("daqdemo: encoding generator block")
				continue
			}
			pkt := signal.NewRawDataPacket(out.Descriptor(), nil, tick, blockSamples, raw)
			if err := out.Send(pkt); err != nil {
				logger.WithError(err).Warn("daqdemo: sending generator block")
			}
			tick += blockSamples
		}
	}
}

func adminOnlyAuth() *configprotocol.StaticAuthenticator {
	auth := configprotocol.NewStaticAuthenticator()
	auth.AddUser("admin", "admin", "admin")
	return auth
}

// runMirrorClient dials the server this process just started, attaches a
// streaming source over that same connection for the producer's Out signal
// (§4.10 "Client mirror", §4.11), and logs every packet it mirrors. It
// returns a func that tears the client and its streaming source down.
func runMirrorClient(root *component.Folder, out *signal.Signal, logger *logrus.Logger) func() {
	client, err := configprotocol.Dial("ws://localhost"+listenAddr+"/daq", configprotocol.HelloPayload{
		Username:       "admin",
		Password:       "admin",
		ConnectionType: configprotocol.ConnectionViewOnly,
	})
	if err != nil {
		logger.WithError(err).Warn("daqdemo: mirror client failed to connect, continuing without it")
		return nil
	}

	outPath := out.GlobalID()
	dev := &mirrorDevice{
		path: root.GlobalID(),
		caps: []streaming.ServerCapability{{
			ProtocolID:   "daq.native",
			ProtocolName: "Native remote mirror",
			Addresses:    []streaming.Address{{Type: streaming.AddressIPv4, ConnectionString: "ws://localhost" + listenAddr + "/daq"}},
		}},
		signals: []streaming.SignalNode{mirrorSignal{path: outPath, remoteID: outPath}},
	}

	attacher := streaming.NewAttacher(
		streaming.Policy{Heuristic: streaming.HeuristicDefault},
		func(_ streaming.DeviceNode, protocol string, addr streaming.Address) (streaming.Source, error) {
			return streaming.NewMirrorSource(protocol, addr, client), nil
		},
		func(signalPath string, pkt streaming.RemotePacket) {
			if dp, ok := pkt.Packet.(*signal.DataPacket); ok {
				logger.Infof("daqdemo: mirrored %s offset=%d samples=%d", signalPath, dp.Offset, dp.SampleCount)
			}
		},
		logger,
	)
	attacher.Attach(dev)

	var once sync.Once
	return func() {
		once.Do(func() {
			_ = attacher.Close()
		})
	}
}

type mirrorDevice struct {
	path    string
	caps    []streaming.ServerCapability
	signals []streaming.SignalNode
}

func (d *mirrorDevice) Path() string                                    { return d.path }
func (d *mirrorDevice) ServerCapabilities() []streaming.ServerCapability { return d.caps }
func (d *mirrorDevice) ConfiguredAddress() string                        { return "" }
func (d *mirrorDevice) Signals() []streaming.SignalNode                  { return d.signals }
func (d *mirrorDevice) Devices() []streaming.DeviceNode                  { return nil }

type mirrorSignal struct {
	path, remoteID string
}

func (s mirrorSignal) Path() string     { return s.path }
func (s mirrorSignal) RemoteID() string { return s.remoteID }

func must(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "daqdemo:", err)
		os.Exit(1)
	}
}
