package workerpool

import (
	"errors"
	"time"
)

// work is the run loop of one worker.
func (p *Pool) work(lc *lifecycle, workerID int) {
	if p.config.OnWorkerStart != nil {
		p.config.OnWorkerStart(workerID)
	}
	defer func() {
		if p.config.OnWorkerStop != nil {
			p.config.OnWorkerStop(workerID)
		}
	}()

	for {
		select {
		case <-lc.quit:
			return
		default:
		}

		select {
		case <-lc.quit:
			return
		case j, ok := <-lc.queue:
			if !ok {
				return
			}
			// Stop won the race for this job.
			select {
			case <-lc.quit:
				lc.dropped.Add(1)
				return
			default:
			}
			p.execute(workerID, j, len(lc.queue))
		}
	}
}

// execute runs j, records the outcome and then resolves its Future.
func (p *Pool) execute(workerID int, j *job, queued int) {
	p.metrics.taskStarted(time.Since(j.enqueued), queued, p.active.Add(1))
	if p.config.OnTaskStart != nil {
		p.config.OnTaskStart(workerID, j.id)
	}

	start := time.Now()
	publish, err := j.exec(j.ctx)
	duration := time.Since(start)
	active := p.active.Add(-1)

	var perr *PanicError
	switch {
	case err == nil:
		p.completed.Add(1)
	case errors.As(err, &perr):
		p.failed.Add(1)
		p.panicked.Add(1)
		p.logger.Warn("task panicked",
			"task_id", j.id,
			"worker_id", workerID,
			"panic", perr.Value,
			"stack", string(perr.Stack))
	default:
		p.failed.Add(1)
	}
	p.metrics.taskFinished(duration, err, perr != nil, active)

	if p.config.OnTaskComplete != nil {
		p.config.OnTaskComplete(workerID, Result{
			TaskID:   j.id,
			Error:    err,
			Duration: duration,
			WorkerID: workerID,
		})
	}
	publish()
}
