package e2e

import (
	"fmt"
	"net/url"
	"testing"

	"github.com/stretchr/testify/suite"
)

type testPaginationSuite struct {
	BaseBrokerSuite
}

func TestPaginationSuite(t *testing.T) {
	suite.Run(t, &testPaginationSuite{})
}

type historyPage struct {
	Messages []struct {
		Text      string `json:"text"`
		From      string `json:"from"`
		Timestamp string `json:"timestamp"`
	} `json:"messages"`
	NextCursor *string `json:"nextCursor"`
}

func (s *testPaginationSuite) TestHistoryWalksBackwardsInAscendingPages() {
	s.SeedUser("dave", "Dave", "erin")
	s.SeedUser("erin", "Erin", "dave")

	s.Step("Store a 25 message conversation")
	for i := 1; i <= 25; i++ {
		_, err := s.Messages.Append("dave", "erin", fmt.Sprintf("message %02d", i))
		s.Require().NoError(err)
	}

	s.Step("First page returns the 20 most recent, oldest first")
	var first historyPage
	s.GetJSON("/api/messages?user1=dave&user2=erin", &first)
	s.Require().Len(first.Messages, 20)
	s.Require().Equal("message 06", first.Messages[0].Text)
	s.Require().Equal("message 25", first.Messages[19].Text)
	s.Require().NotNil(first.NextCursor)

	s.Step("Second page returns the 5 oldest and signals exhaustion")
	var second historyPage
	s.GetJSON("/api/messages?user1=dave&user2=erin&before="+url.QueryEscape(*first.NextCursor), &second)
	s.Require().Len(second.Messages, 5)
	s.Require().Equal("message 01", second.Messages[0].Text)
	s.Require().Equal("message 05", second.Messages[4].Text)

	s.Step("No gap and no duplicate across the page boundary")
	seen := make(map[string]bool)
	for _, m := range append(second.Messages, first.Messages...) {
		s.Require().False(seen[m.Text], "Duplicate across pages: %s", m.Text)
		seen[m.Text] = true
	}
	s.Require().Len(seen, 25)

	s.Step("Symmetric query order returns the same conversation")
	var mirrored historyPage
	s.GetJSON("/api/messages?user1=erin&user2=dave", &mirrored)
	s.Require().Len(mirrored.Messages, 20)
	s.Require().Equal(first.Messages[0].Text, mirrored.Messages[0].Text)
}
