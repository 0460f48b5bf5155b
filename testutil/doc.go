// Package testutil provides test doubles and fixtures shared by package tests.
//
// MockNATSClient stands in for natsclient.Client where a test only needs
// core publish and subscribe. The docker fixtures build journald-style
// records and split long lines into partial fragments:
//
//	frags := testutil.SplitLine("c1", testutil.LongLine(40000), 16384)
//	data := testutil.StreamJSON("docker.app", frags...)
//	_ = client.Publish(ctx, "logs.docker.app", data)
//
// Tests that need a real server use natsclient.NewTestClient instead.
package testutil
