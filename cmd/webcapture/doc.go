// Package main is the webcapture executable.
//
// Pipeline overview:
//   - Input: --url values (plus positional arguments) are captured verbatim; a --file of domain,port lines
//     expands every line into an https and an http URL. Unreadable or malformed files abort the run.
//   - Sessions: the --driver name is looked up in the browser registry (chrome via chromedp, rod via go-rod,
//     firefox as an alias of chrome). Each worker starts its own session up front and closes it at the end.
//   - Capture: navigate, size the viewport to the scrollable document, screenshot <body>, read the text of /html.
//     Results are classified as success, connection_error, driver_timeout or unclassified. Nothing is retried.
//   - Artifacts: successful captures write {domain}.png and {domain}.xml into --output-dir (default ./tmp), and
//     into the GCS mirror under <gcs-prefix>/<run id>/ when --gcs-bucket is set.
//   - Events: with --pubsub-project and --pubsub-topic, every processed target is announced as a JSON message
//     carrying the outcome and artifact URIs. Publish failures are logged, not fatal.
//
// Operational notes:
//   - Every flag can also be set in a --config file or through WEBCAPTURE_<SECTION>_<KEY> variables, e.g.
//     WEBCAPTURE_CAPTURE_CONCURRENCY=4.
//   - Exit status is 0 when the run completes, whatever the per-target outcomes; 1 when input cannot be read or
//     sessions cannot be started; 2 on usage or configuration errors.
//   - SIGINT/SIGTERM stop dequeuing; in-flight captures end within their step budget and sessions are closed.
package main
