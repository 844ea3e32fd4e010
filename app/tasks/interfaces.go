package tasks

// TaskSchedulerInterface defines the interface for background task
// processing. The main application starts it at boot; API handlers enqueue
// full scans on demand while the scheduler enqueues maintenance tasks on
// its own ticker.
// Example usage:
//
//	scheduler := NewScheduler(reportRepo, overrideRepo, packLoader, fetcher, mailer, notifier)
//	scheduler.Start()
//	defer scheduler.Stop()
//	scheduler.EnqueueTask(NewFullScanTask(...))
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
}
