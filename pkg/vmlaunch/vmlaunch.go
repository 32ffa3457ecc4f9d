// Package vmlaunch starts a jailed firecracker-go-sdk Machine, giving
// the jailer's natural VMM consumer a concrete, testable integration
// point: it fills firecracker.Config.JailerCfg directly from Options and
// lets the SDK launch the jailer. It does not use pkg/jailercmd.
package vmlaunch

import (
	"context"
	"fmt"
	"time"

	firecracker "github.com/firecracker-microvm/firecracker-go-sdk"
	"github.com/mdlayher/vsock"
	"github.com/sirupsen/logrus"
)

// Options configures one jailed Firecracker launch.
type Options struct {
	ID              string
	JailerBinary    string
	FirecrackerBin  string
	ChrootBaseDir   string
	UID             int
	GID             int
	NumaNode        int
	KernelImagePath string
	KernelArgs      string
	SocketPath      string
	Daemonize       bool
}

// LaunchJailed builds a firecracker.Config wired through the jailer and
// starts the resulting Machine. The caller owns the returned Machine's
// lifetime and must call StopVMM when done.
func LaunchJailed(ctx context.Context, opts Options) (*firecracker.Machine, error) {
	cfg := firecracker.Config{
		SocketPath:      opts.SocketPath,
		KernelImagePath: opts.KernelImagePath,
		KernelArgs:      opts.KernelArgs,
		VMID:            opts.ID,
		JailerCfg: &firecracker.JailerConfig{
			ID:            opts.ID,
			UID:           firecracker.Int(opts.UID),
			GID:           firecracker.Int(opts.GID),
			NumaNode:      firecracker.Int(opts.NumaNode),
			ExecFile:      opts.FirecrackerBin,
			JailerBinary:  opts.JailerBinary,
			ChrootBaseDir: opts.ChrootBaseDir,
			Daemonize:     opts.Daemonize,
		},
	}

	m, err := firecracker.NewMachine(ctx, cfg, firecracker.WithLogger(logrus.NewEntry(logrus.StandardLogger())))
	if err != nil {
		return nil, fmt.Errorf("vmlaunch: build machine: %w", err)
	}

	if err := m.Start(ctx); err != nil {
		return nil, fmt.Errorf("vmlaunch: start machine: %w", err)
	}

	return m, nil
}

// WaitForAgent dials a guest's vsock CID/port repeatedly until it
// accepts a connection or ctx is done, confirming the jailed VM's own
// init became reachable after the jailer's daemonize+exec sequence
// replaced the jailer's process image.
func WaitForAgent(ctx context.Context, cid, port uint32) error {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		conn, err := vsock.Dial(cid, port, nil)
		if err == nil {
			return conn.Close()
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("vmlaunch: wait for agent on vsock cid=%d port=%d: %w", cid, port, ctx.Err())
		case <-ticker.C:
		}
	}
}
