package consensus

//                            +-------------------------------------+
//                            v                                     |(Wait til `CommmitTime+timeoutCommit`)
//                      +-----------+                         +-----+-----+
//         +----------> |  Propose  +--------------+          | NewHeight |
//         |            +-----------+              |          +-----------+
//         |                                       |                ^
//         |(Else, after timeoutPrecommit)         v                |
//   +-----+-----+                           +-----------+          |
//   | Precommit |  <------------------------+  Prevote  |          |
//   +-----+-----+                           +-----------+          |
//         |(When +2/3 Precommits for block found)                  |
//         v                                                        |
//   +--------------------------------------------------------------------+
//   |  Commit                                                            |
//   |                                                                    |
//   |  * Set CommitTime = now;                                           |
//   |  * Wait for block, then stage/save/commit block;                   |
//   +--------------------------------------------------------------------+
//
// State - the consensus state machine; a single receiveRoutine goroutine
// drains the internal, peer and timeout queues and is the only writer of
// RoundState.
//   - RoundState    - the live height/round/step data: proposal, locked and
//     valid blocks, the HeightVoteSet.
//   - sm.State      - the chain state as of the last committed block.
//   - BlockExecutor - creates proposal blocks from the mempool and applies
//     decided blocks via the application.
//   - BlockStore    - persists blocks, parts and commits.
//   - PeerState     - the reactor's per-peer view, updated from gossip and
//     stored on the peer's kv store.
