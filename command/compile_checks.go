package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[IngestMessage]         = (*IngestCommand)(nil)
	_ gocmd.Commander[RetryNowMessage]       = (*RetryNowCommand)(nil)
	_ gocmd.Commander[PurgeSucceededMessage] = (*PurgeSucceededCommand)(nil)
	_ gocmd.Commander[ReplaySourceMessage]   = (*ReplaySourceCommand)(nil)
	_ gocmd.Commander[MarkEventDeadMessage]  = (*MarkEventDeadCommand)(nil)
)
