package platform

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/palomarmail/palomar/consts"
	"github.com/palomarmail/palomar/mail"
)

const (
	userOne   = "u1@palomar.test"
	userTwo   = "u2@palomar.test"
	userThree = "u3@palomar.test"
)

// newTestPlatform builds serverA -- serverB plus an unlinked serverC, with
// u1 on serverA, u2 on serverB and u3 on serverC.
func newTestPlatform(t *testing.T) *Platform {
	t.Helper()

	p := New(mail.TierMedium)
	for _, id := range []string{"serverA", "serverB", "serverC"} {
		require.NoError(t, p.RegisterServer(id))
	}
	require.NoError(t, p.LinkServers("serverA", "serverB"))
	require.NoError(t, p.RegisterAccount(userOne, "serverA"))
	require.NoError(t, p.RegisterAccount(userTwo, "serverB"))
	require.NoError(t, p.RegisterAccount(userThree, "serverC"))
	return p
}

func send(t *testing.T, p *Platform, from, to, subject string, tier mail.Tier) string {
	t.Helper()
	result, err := p.SendMessage(context.Background(), from, to, subject, "body of "+subject, tier)
	require.NoError(t, err)
	return result.MessageID
}

func TestRegisterServerDuplicate(t *testing.T) {
	p := newTestPlatform(t)
	err := p.RegisterServer("serverA")
	require.ErrorIs(t, err, consts.ErrServerExists)
}

func TestRegisterAccount(t *testing.T) {
	p := newTestPlatform(t)

	err := p.RegisterAccount("new@palomar.test", "nowhere")
	require.ErrorIs(t, err, consts.ErrServerUnknown)

	// Addresses are case-insensitive; a re-registration under different
	// casing is still a duplicate.
	err = p.RegisterAccount("U1@Palomar.Test", "serverB")
	require.ErrorIs(t, err, consts.ErrAccountExists)

	err = p.RegisterAccount("   ", "serverA")
	require.Error(t, err)
}

func TestDeregisterAccount(t *testing.T) {
	p := newTestPlatform(t)

	require.NoError(t, p.DeregisterAccount(userThree))
	err := p.DeregisterAccount(userThree)
	require.ErrorIs(t, err, consts.ErrAccountNotFound)

	_, err = p.SendMessage(context.Background(), userTwo, userThree, "gone", "x", mail.TierMedium)
	require.ErrorIs(t, err, consts.ErrAccountNotFound)
}

func TestSendMessageEndToEnd(t *testing.T) {
	p := newTestPlatform(t)

	result, err := p.SendMessage(context.Background(), userOne, userTwo,
		"deploy finished", "all green", mail.TierHigh)
	require.NoError(t, err)

	require.Equal(t, []string{"serverA", "serverB"}, result.Route)
	require.Equal(t, consts.FolderInbox, result.Folder)
	require.Equal(t, mail.TierHigh, result.Tier)
	require.True(t, result.Queued)
	require.False(t, result.Discarded)

	inbox, err := p.ListMessages(userTwo, consts.FolderInbox)
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	require.Equal(t, result.MessageID, inbox[0].ID)
	require.Equal(t, "deploy finished", inbox[0].Subject)

	// The sender's Sent copy is an independent message: new ID, same content.
	sent, err := p.ListMessages(userOne, consts.FolderSent)
	require.NoError(t, err)
	require.Len(t, sent, 1)
	require.NotEqual(t, inbox[0].ID, sent[0].ID)
	require.Equal(t, inbox[0].ContentHash, sent[0].ContentHash)

	// The queued entry points at the delivered message.
	entry, err := p.Queue().Dequeue()
	require.NoError(t, err)
	require.Equal(t, result.MessageID, entry.MessageID)
	require.Equal(t, userTwo, entry.Recipient)
}

func TestSendMessageUnknownParties(t *testing.T) {
	p := newTestPlatform(t)

	_, err := p.SendMessage(context.Background(), "ghost@palomar.test", userTwo, "s", "b", mail.TierMedium)
	require.ErrorIs(t, err, consts.ErrAccountNotFound)

	_, err = p.SendMessage(context.Background(), userOne, "ghost@palomar.test", "s", "b", mail.TierMedium)
	require.ErrorIs(t, err, consts.ErrAccountNotFound)
}

func TestSendMessageRouteUnavailable(t *testing.T) {
	p := newTestPlatform(t)

	_, err := p.SendMessage(context.Background(), userOne, userThree, "stranded", "b", mail.TierHigh)
	require.ErrorIs(t, err, consts.ErrRouteUnavailable)

	// Nothing may be stored on either side and nothing queued.
	inbox, err := p.ListMessages(userThree, consts.FolderInbox)
	require.NoError(t, err)
	require.Empty(t, inbox)

	sent, err := p.ListMessages(userOne, consts.FolderSent)
	require.NoError(t, err)
	require.Empty(t, sent)

	require.Zero(t, p.Queue().Len())
}

func TestSendMessageToSelf(t *testing.T) {
	p := newTestPlatform(t)

	result, err := p.SendMessage(context.Background(), userOne, userOne, "note to self", "b", mail.TierLow)
	require.NoError(t, err)
	require.Equal(t, []string{"serverA"}, result.Route)

	inbox, err := p.ListMessages(userOne, consts.FolderInbox)
	require.NoError(t, err)
	sent, err := p.ListMessages(userOne, consts.FolderSent)
	require.NoError(t, err)

	require.Len(t, inbox, 1)
	require.Len(t, sent, 1)
	require.NotEqual(t, inbox[0].ID, sent[0].ID)
}

func TestSentCopySurvivesDiscard(t *testing.T) {
	p := newTestPlatform(t)
	require.NoError(t, p.SetAccountScript(userTwo,
		`if header :contains "subject" "newsletter" { discard; }`))

	result, err := p.SendMessage(context.Background(), userOne, userTwo,
		"march newsletter", "b", mail.TierMedium)
	require.NoError(t, err)
	require.True(t, result.Discarded)

	inbox, err := p.ListMessages(userTwo, consts.FolderInbox)
	require.NoError(t, err)
	require.Empty(t, inbox)

	sent, err := p.ListMessages(userOne, consts.FolderSent)
	require.NoError(t, err)
	require.Len(t, sent, 1)
}

func TestDispatchOrderAcrossSends(t *testing.T) {
	p := newTestPlatform(t)

	a := send(t, p, userOne, userTwo, "A", mail.TierHigh)
	b := send(t, p, userOne, userTwo, "B", mail.TierMedium)
	c := send(t, p, userOne, userTwo, "C", mail.TierHigh)

	drained := p.DispatchBatch(context.Background(), 10)
	require.Len(t, drained, 3)
	require.Equal(t, []string{a, c, b},
		[]string{drained[0].MessageID, drained[1].MessageID, drained[2].MessageID})
	require.Zero(t, p.Queue().Len())
}

func TestDispatchBatchRespectsMax(t *testing.T) {
	p := newTestPlatform(t)
	for i := 0; i < 5; i++ {
		send(t, p, userOne, userTwo, "bulk", mail.TierMedium)
	}

	first := p.DispatchBatch(context.Background(), 3)
	require.Len(t, first, 3)
	require.Equal(t, 2, p.Queue().Len())

	rest := p.DispatchBatch(context.Background(), 10)
	require.Len(t, rest, 2)

	empty := p.DispatchBatch(context.Background(), 10)
	require.Empty(t, empty)
}

func TestDispatchAfterDeregister(t *testing.T) {
	p := newTestPlatform(t)
	send(t, p, userOne, userTwo, "doomed", mail.TierHigh)
	require.NoError(t, p.DeregisterAccount(userTwo))

	// The entry is drained even though dispatch fails; it is not requeued.
	drained := p.DispatchBatch(context.Background(), 10)
	require.Len(t, drained, 1)
	require.Zero(t, p.Queue().Len())
}

func TestListMessagesUnknownFolder(t *testing.T) {
	p := newTestPlatform(t)
	_, err := p.ListMessages(userOne, "NoSuch")
	require.ErrorIs(t, err, consts.ErrFolderNotFound)
}

func TestSearchMessages(t *testing.T) {
	p := newTestPlatform(t)
	send(t, p, userOne, userTwo, "Quarterly Report", mail.TierMedium)
	send(t, p, userOne, userTwo, "lunch?", mail.TierLow)
	require.NoError(t, p.MoveMessage(userTwo, consts.FolderInbox, "Archive",
		mustFirstID(t, p, userTwo, "report")))

	// Case-insensitive subject match finds the archived message.
	hits, err := p.SearchMessages(userTwo, "REPORT")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, "Archive", hits[0].Folder)

	// Sender match finds everything u1 sent.
	hits, err = p.SearchMessages(userTwo, "u1@")
	require.NoError(t, err)
	require.Len(t, hits, 2)

	hits, err = p.SearchMessages(userTwo, "no such thing")
	require.NoError(t, err)
	require.Empty(t, hits)
}

func mustFirstID(t *testing.T, p *Platform, address, subjectPart string) string {
	t.Helper()
	hits, err := p.SearchMessages(address, subjectPart)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	return hits[0].Message.ID
}

func TestMoveMessage(t *testing.T) {
	p := newTestPlatform(t)
	id := send(t, p, userOne, userTwo, "file me", mail.TierMedium)

	require.NoError(t, p.MoveMessage(userTwo, consts.FolderInbox, "Archive", id))

	inbox, err := p.ListMessages(userTwo, consts.FolderInbox)
	require.NoError(t, err)
	require.Empty(t, inbox)

	archive, err := p.ListMessages(userTwo, "Archive")
	require.NoError(t, err)
	require.Len(t, archive, 1)
	require.Equal(t, id, archive[0].ID)

	err = p.MoveMessage(userTwo, consts.FolderInbox, "Archive", "no-such-id")
	require.ErrorIs(t, err, consts.ErrMessageNotFound)
}

func TestCreateFolderAndTreeView(t *testing.T) {
	p := newTestPlatform(t)
	require.NoError(t, p.CreateFolder(userOne, "", "Projects"))
	require.NoError(t, p.CreateFolder(userOne, "Projects", "palomar"))

	err := p.CreateFolder(userOne, "", "Projects")
	require.ErrorIs(t, err, consts.ErrFolderExists)

	err = p.CreateFolder(userOne, "NoSuch", "x")
	require.ErrorIs(t, err, consts.ErrFolderNotFound)

	tree, err := p.FolderTree(userOne)
	require.NoError(t, err)

	var paths []string
	for _, child := range tree.Children {
		paths = append(paths, child.Path)
		for _, grand := range child.Children {
			paths = append(paths, grand.Path)
		}
	}
	require.Contains(t, paths, "Projects")
	require.Contains(t, paths, "Projects/palomar")
}

func TestGetMessage(t *testing.T) {
	p := newTestPlatform(t)
	id := send(t, p, userOne, userTwo, "locate me", mail.TierMedium)

	folderPath, msg, err := p.GetMessage(userTwo, id)
	require.NoError(t, err)
	require.Equal(t, consts.FolderInbox, folderPath)
	require.Equal(t, id, msg.ID)

	_, _, err = p.GetMessage(userTwo, "no-such-id")
	require.ErrorIs(t, err, consts.ErrMessageNotFound)
}

func TestIngestMessageExternalSender(t *testing.T) {
	p := newTestPlatform(t)
	raw := strings.Join([]string{
		"From: outside@elsewhere.example",
		"To: " + userTwo,
		"Subject: hello from the wild",
		"X-Priority: 1",
		"",
		"raw body",
	}, "\r\n")

	result, err := p.IngestMessage(context.Background(), []byte(raw), "")
	require.NoError(t, err)
	require.Equal(t, []string{"serverB"}, result.Route)
	require.Equal(t, mail.TierHigh, result.Tier)

	inbox, err := p.ListMessages(userTwo, consts.FolderInbox)
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	require.Equal(t, "hello from the wild", inbox[0].Subject)
}

func TestIngestMessageRecipientOverride(t *testing.T) {
	p := newTestPlatform(t)
	raw := strings.Join([]string{
		"From: " + userOne,
		"To: somewhere@else.example",
		"Subject: rerouted",
		"",
		"raw body",
	}, "\r\n")

	result, err := p.IngestMessage(context.Background(), []byte(raw), userTwo)
	require.NoError(t, err)
	// A registered sender routes from their home server.
	require.Equal(t, []string{"serverA", "serverB"}, result.Route)

	inbox, err := p.ListMessages(userTwo, consts.FolderInbox)
	require.NoError(t, err)
	require.Len(t, inbox, 1)

	// Ingestion makes no Sent copy.
	sent, err := p.ListMessages(userOne, consts.FolderSent)
	require.NoError(t, err)
	require.Empty(t, sent)
}

func TestSetAccountScript(t *testing.T) {
	p := newTestPlatform(t)

	err := p.SetAccountScript(userTwo, `this is not sieve`)
	require.Error(t, err)

	require.NoError(t, p.SetAccountScript(userTwo, `require "fileinto";
if header :contains "subject" "invoice" { fileinto "Receipts"; }`))

	result, err := p.SendMessage(context.Background(), userOne, userTwo,
		"invoice #42", "b", mail.TierMedium)
	require.NoError(t, err)
	require.Equal(t, "Receipts", result.Folder)

	// Clearing the script restores plain INBOX delivery.
	require.NoError(t, p.SetAccountScript(userTwo, ""))
	result, err = p.SendMessage(context.Background(), userOne, userTwo,
		"invoice #43", "b", mail.TierMedium)
	require.NoError(t, err)
	require.Equal(t, consts.FolderInbox, result.Folder)
}

func TestAccountsListing(t *testing.T) {
	p := newTestPlatform(t)
	send(t, p, userOne, userTwo, "one", mail.TierLow)

	infos := p.Accounts()
	require.Len(t, infos, 3)
	require.Equal(t, userOne, infos[0].Address)
	require.Equal(t, userTwo, infos[1].Address)
	require.Equal(t, userThree, infos[2].Address)

	// u1 holds the Sent copy, u2 the delivered message.
	require.Equal(t, 1, infos[0].Messages)
	require.Equal(t, 1, infos[1].Messages)
	require.Equal(t, 0, infos[2].Messages)
}

func TestServersListing(t *testing.T) {
	p := newTestPlatform(t)

	infos := p.Servers()
	require.Len(t, infos, 3)
	require.Equal(t, "serverA", infos[0].ID)
	require.Equal(t, []string{"serverB"}, infos[0].Neighbors)
	require.Equal(t, 1, infos[0].Accounts)
	require.Empty(t, infos[2].Neighbors)
}

func TestHealth(t *testing.T) {
	p := newTestPlatform(t)
	send(t, p, userOne, userTwo, "queued", mail.TierHigh)

	h := p.Health()
	require.Equal(t, "ok", h.Status)
	require.Equal(t, 3, h.Servers)
	require.Equal(t, 3, h.Accounts)
	require.Equal(t, 1, h.QueueDepth)
}

func TestQueueStats(t *testing.T) {
	p := newTestPlatform(t)
	send(t, p, userOne, userTwo, "first", mail.TierMedium)
	high := send(t, p, userOne, userTwo, "second", mail.TierHigh)

	stats := p.QueueStats()
	require.Equal(t, 2, stats.Total)
	require.Equal(t, 1, stats.High)
	require.Equal(t, 1, stats.Medium)
	require.NotNil(t, stats.Next)
	require.Equal(t, high, stats.Next.MessageID)
}
