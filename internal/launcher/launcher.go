// Package launcher starts a paratune process: it sets up the transport for the process's rank,
// builds the rank's object graph from the tuning file and runs it.
package launcher

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/paratune/paratune/internal/options"
	"github.com/paratune/paratune/pkg/config"
	"github.com/paratune/paratune/pkg/logger"
	"github.com/paratune/paratune/pkg/rankctx"
	"github.com/paratune/paratune/pkg/syncx/errgroupx"
	"github.com/paratune/paratune/pkg/transport"
)

const shutdownTimeout = 5 * time.Second

// Launcher runs one rank of a tuning group.
type Launcher struct {
	opts   options.Options
	tuning *config.TuningFile
	log    *logrus.Entry
}

// New loads the tuning file named by opts.
func New(opts options.Options, log *logrus.Entry) (*Launcher, error) {
	tf, err := config.Load(opts.TuningFile)
	if err != nil {
		return nil, err
	}
	return &Launcher{
		opts:   opts,
		tuning: tf,
		log:    logger.Component(log, "launcher").WithField("rank", opts.Rank),
	}, nil
}

// Run runs the process's rank until it is done. The role is chosen by rank alone.
func (l *Launcher) Run(ctx context.Context) error {
	if l.opts.IsMaster() {
		ln, err := net.Listen("tcp", l.opts.BindAddress())
		if err != nil {
			return errors.Wrapf(err, "listening on %s", l.opts.BindAddress())
		}
		g, err := l.RunMaster(ctx, ln)
		if err != nil {
			return err
		}
		reportResult(l.log, g)
		return nil
	}
	_, err := l.RunSlave(ctx)
	return err
}

// RunMaster hosts the hub on ln, waits for every slave and runs the master. ln is closed on
// return.
func (l *Launcher) RunMaster(ctx context.Context, ln net.Listener) (*config.Graph, error) {
	hub, err := transport.NewHub(l.log, l.opts.Size)
	if err != nil {
		_ = ln.Close()
		return nil, err
	}
	api := newAPIServer(l.log, hub, l.opts.Metrics)

	eg := errgroupx.WithContext(ctx)
	defer eg.Cancel()
	eg.Go(func(context.Context) error { return api.serve(ln) })

	var g *config.Graph
	eg.Go(func(ctx context.Context) (err error) {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			var merr *multierror.Error
			merr = multierror.Append(merr, err, hub.Close(), api.close(shutdownCtx))
			err = merr.ErrorOrNil()
		}()

		l.log.Infof("waiting for %d slaves", l.opts.Size-1)
		if err := hub.WaitReady(ctx); err != nil {
			return err
		}
		g, err = l.tuning.Build(rankctx.New(hub, l.log), l.log)
		if err != nil {
			return err
		}
		runErr := g.Role().Run(ctx)

		// The master has broadcast EXIT; let the slaves hang up before the hub goes away.
		waitCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()
		if err := hub.WaitDisconnected(waitCtx); err != nil {
			l.log.WithError(err).Warn("closing with slaves still connected")
		}
		return runErr
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return g, nil
}

// RunSlave dials the master and serves it until told to exit.
func (l *Launcher) RunSlave(ctx context.Context) (*config.Graph, error) {
	client, err := transport.Dial(ctx, l.log, l.opts.DialConfig())
	if err != nil {
		return nil, errors.Wrap(err, "connecting to the master")
	}
	defer func() {
		if err := client.Close(); err != nil {
			l.log.WithError(err).Debug("closing connection to the master")
		}
	}()

	g, err := l.tuning.Build(rankctx.New(client, l.log), l.log)
	if err != nil {
		return nil, err
	}
	if err := g.Role().Run(ctx); err != nil {
		return nil, err
	}
	return g, nil
}

// RunLocal runs a whole group of size ranks in this process, one goroutine per rank, and returns
// every rank's graph.
func RunLocal(
	ctx context.Context, tf *config.TuningFile, size int, log *logrus.Entry,
) ([]*config.Graph, error) {
	group, err := transport.NewLocalGroup(size)
	if err != nil {
		return nil, err
	}
	defer func() { _ = group.Close() }()

	graphs := make([]*config.Graph, size)
	for r := range graphs {
		rlog := logger.OrDefault(log).WithField("rank", r)
		if graphs[r], err = tf.Build(rankctx.New(group.Endpoint(r), rlog), rlog); err != nil {
			return nil, errors.Wrapf(err, "building rank %d", r)
		}
	}

	eg := errgroupx.WithContext(ctx)
	for r, g := range graphs {
		role := g.Role()
		eg.GoNamed(fmt.Sprintf("rank %d", r), role.Run)
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	reportResult(logger.Component(log, "launcher"), graphs[rankctx.MasterRank])
	return graphs, nil
}

func reportResult(log *logrus.Entry, g *config.Graph) {
	if g == nil || g.Tuner == nil {
		return
	}
	t := g.Tuner
	log.WithFields(logrus.Fields{
		"initial":    t.InitialParameters(),
		"final":      t.FinalParameters(),
		"iterations": t.Iterations(),
	}).Infof("final value %g", t.FinalValue())
}
