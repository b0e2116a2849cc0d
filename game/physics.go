package game

import (
	"math"
	"math/rand/v2"
)

// Random picks serve directions. Injected so tests can replay rallies exactly.
type Random interface {
	Intn(n int) int
}

type mathRandom struct{}

func (mathRandom) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	return rand.IntN(n)
}

func NewRandom() Random {
	return mathRandom{}
}

// spin is how much of the ball speed a hit on the paddle edge adds vertically.
const spin = 0.5

type paddle struct {
	y float64 // top edge
}

type ball struct {
	x, y   float64
	vx, vy float64
}

// court is the pure simulation state of one match. It never touches the network.
type court struct {
	settings Settings
	paddles  [2]paddle
	ball     ball
	scores   [2]int
}

func newCourt(s Settings, rnd Random) court {
	c := court{settings: s}
	top := (s.CourtHeight - s.PaddleHeight) / 2
	c.paddles[0].y = top
	c.paddles[1].y = top
	towards := Left
	if rnd.Intn(2) == 1 {
		towards = Right
	}
	c.serve(towards, rnd)
	return c
}

// serve re-centres the ball and launches it towards the given side.
func (c *court) serve(towards Position, rnd Random) {
	s := c.settings
	c.ball.x = s.CourtWidth / 2
	c.ball.y = s.CourtHeight / 2
	c.ball.vx = s.BallSpeed
	if towards == Left {
		c.ball.vx = -s.BallSpeed
	}
	c.ball.vy = s.BallSpeed / 2
	if rnd.Intn(2) == 1 {
		c.ball.vy = -c.ball.vy
	}
}

// faceX is the x of the paddle surface the ball bounces on.
func (c *court) faceX(side int) float64 {
	s := c.settings
	if side == 0 {
		return s.PaddleOffset + s.PaddleWidth
	}
	return s.CourtWidth - s.PaddleOffset - s.PaddleWidth
}

func (c *court) movePaddles(inputs [2]Action) {
	s := c.settings
	for i := range c.paddles {
		y := c.paddles[i].y + inputs[i].direction()*s.PaddleSpeed
		c.paddles[i].y = math.Max(0, math.Min(y, s.CourtHeight-s.PaddleHeight))
	}
}

// step advances the court by one tick and returns the index of the side that scored,
// or -1 when nobody did.
func (c *court) step(inputs [2]Action, rnd Random) int {
	s := c.settings
	c.movePaddles(inputs)

	prev := c.ball
	c.ball.x += c.ball.vx
	c.ball.y += c.ball.vy

	// A contact is a crossing of the paddle plane while moving towards it, so the
	// reflected ball can never hit the same face again in the same tick.
	switch {
	case c.ball.vx < 0:
		face := c.faceX(0)
		if prev.x-s.BallRadius >= face && c.ball.x-s.BallRadius < face {
			c.bounceOffPaddle(0, prev, face+s.BallRadius)
		}
	case c.ball.vx > 0:
		face := c.faceX(1)
		if prev.x+s.BallRadius <= face && c.ball.x+s.BallRadius > face {
			c.bounceOffPaddle(1, prev, face-s.BallRadius)
		}
	}

	if c.ball.y-s.BallRadius < 0 {
		c.ball.y = s.BallRadius
		c.ball.vy = math.Abs(c.ball.vy)
	} else if c.ball.y+s.BallRadius > s.CourtHeight {
		c.ball.y = s.CourtHeight - s.BallRadius
		c.ball.vy = -math.Abs(c.ball.vy)
	}

	switch {
	case c.ball.x < 0:
		c.scores[1]++
		c.serve(Left, rnd)
		return 1
	case c.ball.x > s.CourtWidth:
		c.scores[0]++
		c.serve(Right, rnd)
		return 0
	}
	return -1
}

// bounceOffPaddle reflects the ball if, at the moment it reached contactX, it overlapped
// the paddle vertically.
func (c *court) bounceOffPaddle(side int, prev ball, contactX float64) {
	s := c.settings
	t := 1.0
	if dx := c.ball.x - prev.x; dx != 0 {
		t = (contactX - prev.x) / dx
	}
	yAt := prev.y + t*(c.ball.y-prev.y)

	p := c.paddles[side]
	if yAt+s.BallRadius < p.y || yAt-s.BallRadius > p.y+s.PaddleHeight {
		return
	}

	c.ball.x = contactX
	c.ball.y = yAt
	c.ball.vx = -c.ball.vx

	half := s.PaddleHeight / 2
	offset := math.Max(-1, math.Min(1, (yAt-(p.y+half))/half))
	vy := c.ball.vy + offset*s.BallSpeed*spin
	c.ball.vy = math.Max(-s.BallSpeed, math.Min(vy, s.BallSpeed))
}
