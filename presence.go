package eventflit

import (
	"errors"
	"sync"

	"github.com/tidwall/gjson"
)

// Member is one entry in a presence channel roster.
type Member struct {
	UserID   string
	UserInfo any // decoded user_info, nil when absent
}

// MemberHandler observes roster changes on a presence channel.
type MemberHandler func(Member)

// presenceState is the roster of a presence channel. Only the client's
// inbound frame handling mutates it.
type presenceState struct {
	mu          sync.Mutex
	members     []Member
	myID        string
	channelData string // channel_data sent with the last subscribe

	onMemberAdded   MemberHandler
	onMemberRemoved MemberHandler
}

func (p *presenceState) setChannelData(data string) {
	p.mu.Lock()
	p.channelData = data
	p.mu.Unlock()
}

// subscriptionSucceeded resolves the local user id from the channel data and
// replaces the roster with the presence hash carried by payload. Members are
// added in the order they appear in the hash.
func (p *presenceState) subscriptionSucceeded(payload string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channelData != "" {
		if id := gjson.Get(p.channelData, "user_id"); id.Exists() {
			p.myID = id.String()
		}
	}

	p.members = p.members[:0]
	if payload == "" {
		return nil
	}
	if !gjson.Valid(payload) {
		return errors.New("subscription payload is not valid JSON")
	}
	hash := gjson.Get(payload, "presence.hash")
	if !hash.Exists() {
		return nil
	}
	if !hash.IsObject() {
		return errors.New("presence hash is not an object")
	}
	hash.ForEach(func(userID, info gjson.Result) bool {
		p.members = append(p.members, Member{UserID: userID.String(), UserInfo: userInfoValue(info)})
		return true
	})
	return nil
}

// addMember appends the member described by payload. Repeated ids are
// appended again rather than merged.
func (p *presenceState) addMember(payload string) (Member, error) {
	m, err := parseMember(payload)
	if err != nil {
		return Member{}, err
	}
	p.mu.Lock()
	p.members = append(p.members, m)
	p.mu.Unlock()
	return m, nil
}

// removeMember drops the first roster entry matching the id in payload.
// It reports false when no entry matched.
func (p *presenceState) removeMember(payload string) (Member, bool, error) {
	m, err := parseMember(payload)
	if err != nil {
		return Member{}, false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, existing := range p.members {
		if existing.UserID == m.UserID {
			p.members = append(p.members[:i:i], p.members[i+1:]...)
			return existing, true, nil
		}
	}
	return Member{}, false, nil
}

func (p *presenceState) reset() {
	p.mu.Lock()
	p.members = nil
	p.mu.Unlock()
}

func parseMember(payload string) (Member, error) {
	if !gjson.Valid(payload) {
		return Member{}, errors.New("member payload is not valid JSON")
	}
	id := gjson.Get(payload, "user_id")
	if !id.Exists() || id.Type == gjson.Null {
		return Member{}, errors.New("member payload has no user_id")
	}
	return Member{
		UserID:   id.String(),
		UserInfo: userInfoValue(gjson.Get(payload, "user_info")),
	}, nil
}

func userInfoValue(r gjson.Result) any {
	if !r.Exists() || r.Type == gjson.Null {
		return nil
	}
	return r.Value()
}

// PresenceChannel is the presence view of a Channel.
type PresenceChannel struct {
	*Channel
}

// Members returns a copy of the roster in insertion order.
func (pc *PresenceChannel) Members() []Member {
	p := pc.presence
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Member(nil), p.members...)
}

// MyID returns the local user's id, known once the subscription succeeds.
func (pc *PresenceChannel) MyID() string {
	p := pc.presence
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.myID
}

// FindMember returns the first member with userID. It is a linear scan.
func (pc *PresenceChannel) FindMember(userID string) (Member, bool) {
	p := pc.presence
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range p.members {
		if m.UserID == userID {
			return m, true
		}
	}
	return Member{}, false
}

// Me returns the roster entry of the local user.
func (pc *PresenceChannel) Me() (Member, bool) {
	id := pc.MyID()
	if id == "" {
		return Member{}, false
	}
	return pc.FindMember(id)
}
