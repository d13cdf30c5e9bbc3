// Package prompt assembles per-agent context windows for provider calls.
//
// Each agent in a dispatch cycle sees the same bounded conversation history
// through its own lens: its earlier replies come back as RoleSelf, the human
// turns as RoleHuman, and every other agent's turns as RoleOther with the
// author's display name prefixed into the text. Two-role chat protocols have
// no native third-party speaker, so the prefix is the attribution.
//
// Build is a pure function of its inputs. System prompts are not part of the
// turn list; the provider layer carries them separately.
package prompt
