package tilepack

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tilezen/go-tilemesh/tilemath"
)

type JobGenerator interface {
	CreateWorker() (func(id int, jobs chan *TileRequest, results chan *TileResponse), error)
	CreateJobs(jobs chan *TileRequest) error
}

// NewSourceJobGenerator makes jobs for every tile of fields and workers
// that fetch them from src. Tiles the source does not have are skipped.
func NewSourceJobGenerator(ctx context.Context, src Source, fields []tilemath.TileField, logger logrus.FieldLogger) JobGenerator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &sourceJobGenerator{ctx: ctx, src: src, fields: fields, logger: logger}
}

type sourceJobGenerator struct {
	ctx    context.Context
	src    Source
	fields []tilemath.TileField
	logger logrus.FieldLogger
}

func (g *sourceJobGenerator) CreateWorker() (func(id int, jobs chan *TileRequest, results chan *TileResponse), error) {
	f := func(id int, jobs chan *TileRequest, results chan *TileResponse) {
		log := g.logger.WithField("worker", id)
		for request := range jobs {
			start := time.Now()

			data, err := g.src.Fetch(g.ctx, request.ID)
			if err != nil {
				log.WithError(err).WithField("tile", request.ID.String()).Warn("Skipping tile")
				continue
			}

			results <- &TileResponse{
				ID:      request.ID,
				Data:    data,
				Elapsed: time.Since(start).Seconds(),
			}
		}
	}
	return f, nil
}

func (g *sourceJobGenerator) CreateJobs(jobs chan *TileRequest) error {
	for _, field := range g.fields {
		for id := range field.All() {
			select {
			case <-g.ctx.Done():
				return g.ctx.Err()
			case jobs <- &TileRequest{ID: id}:
			}
		}
	}
	return nil
}
