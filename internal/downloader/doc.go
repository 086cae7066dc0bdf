// Package downloader plans and runs the download of one release.
//
// A run proceeds strictly in order:
//
//  1. The manifest is fetched (resumed when a partial copy exists) and parsed.
//  2. In archive mode, every archive holding a pending file is probed, fetched
//     in ascending id order and its files are extracted in manifest order.
//     Archives are exported when an Exporter is configured and deleted unless
//     KeepArchives is set.
//  3. In individual mode, each pending file is fetched on its own and
//     decompressed into place.
//
// When the local manifest parses and every final file already exists the run
// takes a fast path and makes no requests at all. Force removes existing
// files first so everything is fetched again.
//
// Failures on single files are collected and returned together as a
// *FilesFailedError once the run finishes; failures of the manifest or a
// missing archive abort the run.
//
// Example:
//
//	d, err := downloader.New(downloader.Options{
//		Layout:    layout,
//		Transport: dlhttp.NewClient(dlhttp.DefaultOptions()),
//		Logger:    logger,
//	})
//	if err != nil {
//		return err
//	}
//	summary, err := d.Run(ctx)
package downloader
