// Package progress provides progress reporting for downloads.
//
// RateEstimator smooths throughput with an exponential moving average and
// derives an ETA. Reporter draws one progress line per transfer on a terminal,
// Counter prints (i/n) lines for long runs of small files.
//
// # Usage
//
//	reporter := progress.NewReporter(progress.Options{Output: os.Stderr})
//
//	reporter.Begin("BIN_0x00000003", alreadyOnDisk, total)
//	reporter.Update(bytesOnDisk)
//	reporter.End(err)
//
// # Output Format
//
//	[loldl] BIN_0x00000003  45.2% | 113 MiB / 250 MiB | 1.2 MiB/s | ETA 00:01:54
package progress
