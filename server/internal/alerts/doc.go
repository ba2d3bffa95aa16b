// Package alerts evaluates threshold rules over the working-set summary
// (cpk, yield_pct, out_of_spec_count, std_dev, mean, count, grade) and
// delivers fire/resolve notifications to Teams, Slack or generic HTTP webhooks.
package alerts
