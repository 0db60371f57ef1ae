package tuning

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/paratune/paratune/pkg/logger"
	"github.com/paratune/paratune/pkg/rankctx"
)

// Slave serves the master's commands with a local system until told to exit.
type Slave struct {
	rc     *rankctx.Context
	system System
	log    *logrus.Entry

	// data is reused by every update, as the system may key its state on it.
	data    *SystemData
	handled int
}

// NewSlave returns a slave scoring with system.
func NewSlave(rc *rankctx.Context, system System, log *logrus.Entry) *Slave {
	return &Slave{
		rc:     rc,
		system: system,
		log:    logger.Component(log, "slave").WithField("rank", rc.SelfRank()),
		data:   NewSystemData(""),
	}
}

// Handled returns how many commands the slave has answered.
func (s *Slave) Handled() int { return s.handled }

// Run answers commands from the master until it receives EXIT. A failing system is reported to
// the master and does not end the loop; a transport failure does.
func (s *Slave) Run(ctx context.Context) error {
	if s.system == nil {
		return errors.New("slave has no system")
	}
	s.log.Info("serving master")
	defer s.log.Infof("stopped after %d commands", s.handled)

	for {
		tag, err := s.rc.ReceiveTag(ctx, rankctx.MasterRank)
		if err != nil {
			return errors.Wrap(err, "waiting for a command")
		}

		switch tag {
		case rankctx.TagExit:
			return nil
		case TagUpdateScore:
			err = s.update(ctx)
		case TagGetScore:
			err = s.score(ctx)
		default:
			s.log.Warnf("ignoring unrecognized tag %d from the master", tag)
			continue
		}
		if err != nil {
			return err
		}
		s.handled++
	}
}

func (s *Slave) update(ctx context.Context) error {
	d := s.data
	if err := s.rc.Receive(ctx, d, rankctx.MasterRank, TagUpdateScore); err != nil {
		return errors.Wrap(err, "receiving system data")
	}
	s.system.SetData(d)
	s.system.SetTunableParameters(d.Parameters)
	if err := s.system.UpdatePerformanceScore(ctx); err != nil {
		s.log.WithError(err).Errorf("updating score of %q", d.Name)
		return s.rc.SendTag(ctx, rankctx.MasterRank, rankctx.TagFail)
	}
	return s.rc.SendTag(ctx, rankctx.MasterRank, rankctx.TagOK)
}

func (s *Slave) score(ctx context.Context) error {
	score, err := s.system.PerformanceScore(ctx)
	if err != nil {
		s.log.WithError(err).Error("getting score")
		return s.rc.SendTag(ctx, rankctx.MasterRank, rankctx.TagFail)
	}
	if err := s.rc.SendTag(ctx, rankctx.MasterRank, rankctx.TagOK); err != nil {
		return err
	}
	return rankctx.SendScalar(ctx, s.rc, score, rankctx.MasterRank, TagGetScore)
}
