/*
Package mailer queues outbound mail and hands each message to the local
mail-submission program.

Delivery is fire-and-forget by design: the server's mails are
notifications (new auth tokens, operator messages), and a lost
notification is preferable to a blocked dispatcher. Failures are logged
and counted, never retried.

# Queue and Worker

Submit places the message on a bounded channel and returns immediately;
when the queue is full the message is dropped with a warning rather than
blocking the caller. A single worker drains the queue:

	m := mailer.New(mailer.Settings{
		FromAddress: cfg.SenderEmailAddress,
		Command:     cfg.SendmailCommand, // "sendmail" by default
		SendTimeout: 30 * time.Second,
	})
	m.Start()
	defer m.Stop() // drains whatever is still queued

# Delivery

Each message spawns one child:

	<command> -t <to>

with the message written to its stdin and the pipe closed:

	From:<sender>          (only when a sender is configured)
	Subject:<subject>
	<blank line>
	<body>

Success is the child exiting cleanly within the send timeout; the timeout
kills the child through the command context.

# See Also

  - pkg/dispatcher - queues the token-generation notification mail
*/
package mailer
