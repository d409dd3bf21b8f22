/*
Package cli provides the output and process helpers shared by the
smolrouter commands.

Output:

	p := cli.NewPrinter(cmd.OutOrStdout(), noColor)
	p.Heading("Routing")
	p.Field("default upstream", snap.DefaultUpstream)
	p.Success("configuration valid")

Commands that support --output json write their result with WriteJSON
instead.

Progress:

	progress := cli.NewProgressReporter(os.Stdout, noColor)
	progress.Start(len(providers))
	for _, p := range providers {
		start := time.Now()
		err := probe(p)
		progress.Step(p.Name, err, time.Since(start))
	}
	ok, failed := progress.Finish()

Errors returned from commands are mapped to exit codes by ExitCode;
configuration errors exit with 2.
*/
package cli
