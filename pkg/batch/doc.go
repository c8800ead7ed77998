// Package batch runs the dashboard export protocol over a list of dashboards.
//
// A run has two passes. The export pass submits one export job per dashboard,
// polls it under the configured budget and writes each delivered document to
// <ExportDir>/<id>.<ext>. The convert pass then turns every written artifact
// into page images named <id>.<page>.jpg. A dashboard that fails in either
// pass is recorded with the stage it failed in and the run continues.
//
// Dashboards are processed one at a time in input order unless Concurrency is
// raised, in which case exports run in a bounded pool. Results keep input
// order either way.
//
// Example:
//
//	orch, err := batch.New(sumo, raster.NewPdftoppm("", 0, 0), batch.Config{
//	    ExportDir: "/var/tmp/dashboardexport",
//	    Budget:    client.DefaultPollBudget(),
//	})
//	if err != nil {
//	    return err
//	}
//	result, err := orch.Run(ctx, []batch.DashboardRef{{ID: "d1", Label: "Sales"}})
package batch
